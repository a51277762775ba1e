package authz

import (
	"fmt"
	"strings"
)

// Action is the closed verb set permissions grant.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionAny    Action = "*"
)

// ValidAction reports whether a is one of the recognized actions.
func ValidAction(a Action) bool {
	switch a {
	case ActionRead, ActionWrite, ActionDelete, ActionAny:
		return true
	}
	return false
}

type patternKind int

const (
	patternExact patternKind = iota
	patternPrefixWildcard
	patternGlobal
)

// Permission grants an action on resources matching a pattern, optionally
// narrowed by conditions (logical AND). The pattern is compiled once, at
// role-load time, into a tagged variant so matching is string comparison
// only.
type Permission struct {
	Resource   string      `json:"resource" yaml:"resource"`
	Action     Action      `json:"action" yaml:"action"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	kind   patternKind
	prefix string // set for prefix-wildcard patterns, without the trailing "*"
}

// Compile resolves the resource pattern into its tagged form and
// validates the action. It must be called before the permission is
// handed to an Evaluator; LoadRoles and the key store do this.
func (p *Permission) Compile() error {
	if !ValidAction(p.Action) {
		return fmt.Errorf("authz: invalid action %q", p.Action)
	}
	for i := range p.Conditions {
		if err := p.Conditions[i].validate(); err != nil {
			return err
		}
	}
	switch {
	case p.Resource == "*":
		p.kind = patternGlobal
	case strings.HasSuffix(p.Resource, "/*"):
		p.kind = patternPrefixWildcard
		p.prefix = strings.TrimSuffix(p.Resource, "*")
	case p.Resource == "":
		return fmt.Errorf("authz: empty resource pattern")
	default:
		p.kind = patternExact
	}
	return nil
}

// CompilePermissions compiles a slice and returns its canonical form.
// A prefix-wildcard pattern carrying the any action would fall between
// the matcher's precedence tiers, so it expands here into one grant per
// concrete action; the closed action set makes that expansion exact.
func CompilePermissions(perms []Permission) ([]Permission, error) {
	out := make([]Permission, 0, len(perms))
	for i := range perms {
		p := perms[i]
		if err := p.Compile(); err != nil {
			return nil, err
		}
		if p.kind == patternPrefixWildcard && p.Action == ActionAny {
			for _, a := range []Action{ActionRead, ActionWrite, ActionDelete} {
				q := p
				q.Action = a
				q.Conditions = append([]Condition(nil), p.Conditions...)
				out = append(out, q)
			}
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Role is a named, reusable permission bundle. CrossTenant marks the
// designated override role that may reach resources outside the
// principal's tenant.
type Role struct {
	Name        string       `yaml:"name"`
	OrgID       string       `yaml:"org_id,omitempty"`
	CrossTenant bool         `yaml:"cross_tenant,omitempty"`
	Permissions []Permission `yaml:"permissions"`
}

// Principal is the authenticated (or anonymous) actor of one request.
// Resolved once per request and never mutated afterwards.
type Principal struct {
	ID          string
	OrgID       string
	KeyID       string
	Roles       []string
	Permissions []Permission
	Plan        string
}

// Anonymous reports whether no credential was presented.
func (p Principal) Anonymous() bool {
	return p.ID == "" && p.KeyID == ""
}
