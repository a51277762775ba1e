package authz

import (
	"fmt"
	"strings"
)

// Decision is the outcome of one authorization check.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Evaluator decides allow/deny for (principal, resource, action) against
// the role configuration loaded at process start. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	roles map[string]Role
}

func NewEvaluator(roles []Role) *Evaluator {
	byName := make(map[string]Role, len(roles))
	for _, r := range roles {
		byName[r.Name] = r
	}
	return &Evaluator{roles: byName}
}

// Authorize performs an object-level check: conditioned permissions are
// evaluated against the supplied resource data and fail closed when data
// (or a referenced field) is missing.
func (e *Evaluator) Authorize(p Principal, resource string, action Action, data map[string]any, ectx EvalContext) Decision {
	return e.authorize(p, resource, action, data, ectx, false)
}

// AuthorizeRoute performs a route-level check, before any resource data
// exists. A conditioned permission that matches is provisionally granted;
// callers touching concrete objects must re-check with Authorize.
func (e *Evaluator) AuthorizeRoute(p Principal, resource string, action Action, ectx EvalContext) Decision {
	return e.authorize(p, resource, action, nil, ectx, true)
}

func (e *Evaluator) authorize(p Principal, resource string, action Action, data map[string]any, ectx EvalContext, routeLevel bool) Decision {
	if deny, reason := e.tenantViolation(p, data); deny {
		return Decision{Allow: false, Reason: reason}
	}

	perms := e.collect(p)
	if len(perms) == 0 {
		return Decision{Allow: false, Reason: "no permissions granted"}
	}

	match := firstMatch(perms, resource, action)
	if match == nil {
		return Decision{Allow: false, Reason: "no matching permission"}
	}
	if len(match.Conditions) == 0 {
		return Decision{Allow: true, Reason: "matched " + match.Resource}
	}
	if data == nil {
		if routeLevel {
			return Decision{Allow: true, Reason: "provisional route-level grant for " + match.Resource}
		}
		return Decision{Allow: false, Reason: "conditioned permission requires resource data"}
	}
	for _, c := range match.Conditions {
		if !evalCondition(c, data, ectx) {
			return Decision{Allow: false, Reason: fmt.Sprintf("condition on %q not satisfied", c.Field)}
		}
	}
	return Decision{Allow: true, Reason: "matched " + match.Resource + " with conditions"}
}

// tenantViolation enforces isolation: resource data carrying a foreign
// tenant id is denied unless the principal holds a cross-tenant role.
func (e *Evaluator) tenantViolation(p Principal, data map[string]any) (bool, string) {
	if data == nil || p.OrgID == "" {
		return false, ""
	}
	owner := ""
	if v, ok := data["organization_id"]; ok {
		owner = fmt.Sprintf("%v", v)
	} else if v, ok := data["org_id"]; ok {
		owner = fmt.Sprintf("%v", v)
	}
	if owner == "" || owner == p.OrgID {
		return false, ""
	}
	for _, name := range p.Roles {
		if r, ok := e.roles[name]; ok && r.CrossTenant {
			return false, ""
		}
	}
	return true, "resource belongs to another tenant"
}

// collect unions role permissions with the principal's directly attached
// ones, deduplicated by (pattern, action). The key is the pair itself, not
// position; when both a conditioned and an unconditioned grant exist for
// the same pair, the unconditioned one is kept.
func (e *Evaluator) collect(p Principal) []Permission {
	var out []Permission
	index := map[string]int{}

	add := func(perm Permission) {
		key := perm.Resource + "|" + string(perm.Action)
		if i, ok := index[key]; ok {
			if len(out[i].Conditions) > 0 && len(perm.Conditions) == 0 {
				out[i] = perm
			}
			return
		}
		index[key] = len(out)
		out = append(out, perm)
	}

	for _, name := range p.Roles {
		role, ok := e.roles[name]
		if !ok {
			continue
		}
		if role.OrgID != "" && role.OrgID != p.OrgID {
			continue
		}
		for _, perm := range role.Permissions {
			add(perm)
		}
	}
	for _, perm := range p.Permissions {
		add(perm)
	}
	return out
}

// firstMatch walks the precedence tiers and returns the first permission
// whose pattern and action cover the target. Order:
//
//	global pattern + any action
//	global pattern + exact action
//	exact resource + any action
//	exact resource + exact action
//	prefix-wildcard pattern + exact action
//	pattern is a strict path prefix of the resource + exact action
func firstMatch(perms []Permission, resource string, action Action) *Permission {
	tiers := []func(Permission) bool{
		func(p Permission) bool { return p.kind == patternGlobal && p.Action == ActionAny },
		func(p Permission) bool { return p.kind == patternGlobal && p.Action == action },
		func(p Permission) bool { return p.kind == patternExact && p.Resource == resource && p.Action == ActionAny },
		func(p Permission) bool { return p.kind == patternExact && p.Resource == resource && p.Action == action },
		func(p Permission) bool {
			return p.kind == patternPrefixWildcard && strings.HasPrefix(resource, p.prefix) && p.Action == action
		},
		func(p Permission) bool {
			return p.kind == patternExact && p.Action == action &&
				len(resource) > len(p.Resource) && strings.HasPrefix(resource, p.Resource+"/")
		},
	}
	for _, tier := range tiers {
		for i := range perms {
			if tier(perms[i]) {
				return &perms[i]
			}
		}
	}
	return nil
}
