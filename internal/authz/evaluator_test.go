package authz

import (
	"testing"
	"time"
)

func mustCompile(t *testing.T, perms []Permission) []Permission {
	t.Helper()
	compiled, err := CompilePermissions(perms)
	if err != nil {
		t.Fatalf("compile permissions: %v", err)
	}
	return compiled
}

func testCtx() EvalContext {
	return EvalContext{
		PrincipalID: "user-1",
		OrgID:       "org-1",
		ClientIP:    "10.0.0.9",
		Now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAuthorize_DefaultDeny(t *testing.T) {
	ev := NewEvaluator(nil)
	p := Principal{ID: "user-1", OrgID: "org-1"}
	d := ev.AuthorizeRoute(p, "cases/1", ActionRead, testCtx())
	if d.Allow {
		t.Fatalf("expected deny for principal with zero permissions, got allow (%s)", d.Reason)
	}
}

func TestAuthorize_GlobalWildcard(t *testing.T) {
	ev := NewEvaluator(nil)
	p := Principal{
		ID: "user-1", OrgID: "org-1",
		Permissions: mustCompile(t, []Permission{{Resource: "*", Action: ActionAny}}),
	}
	for _, res := range []string{"cases", "cases/42", "anything/else"} {
		for _, act := range []Action{ActionRead, ActionWrite, ActionDelete} {
			if d := ev.AuthorizeRoute(p, res, act, testCtx()); !d.Allow {
				t.Fatalf("wildcard should allow %s on %s: %s", act, res, d.Reason)
			}
		}
	}
}

func TestAuthorize_ExactActionMismatch(t *testing.T) {
	ev := NewEvaluator(nil)
	p := Principal{
		ID: "user-1", OrgID: "org-1",
		Permissions: mustCompile(t, []Permission{{Resource: "cases", Action: ActionRead}}),
	}
	if d := ev.AuthorizeRoute(p, "cases", ActionRead, testCtx()); !d.Allow {
		t.Fatalf("read on cases should be allowed: %s", d.Reason)
	}
	if d := ev.AuthorizeRoute(p, "cases/123", ActionDelete, testCtx()); d.Allow {
		t.Fatal("delete on cases/123 should be denied with only a read grant")
	}
}

func TestAuthorize_PrefixWildcardPattern(t *testing.T) {
	ev := NewEvaluator(nil)
	p := Principal{
		ID: "user-1", OrgID: "org-1",
		Permissions: mustCompile(t, []Permission{{Resource: "cases/*", Action: ActionRead}}),
	}
	if d := ev.AuthorizeRoute(p, "cases/99", ActionRead, testCtx()); !d.Allow {
		t.Fatalf("prefix wildcard should match sub-resource: %s", d.Reason)
	}
	if d := ev.AuthorizeRoute(p, "documents/99", ActionRead, testCtx()); d.Allow {
		t.Fatal("prefix wildcard must not match a different tree")
	}
	if d := ev.AuthorizeRoute(p, "cases/99", ActionWrite, testCtx()); d.Allow {
		t.Fatal("prefix wildcard requires exact action match")
	}
}

func TestAuthorize_PrefixWildcardAnyAction(t *testing.T) {
	ev := NewEvaluator(nil)
	p := Principal{
		ID: "user-1", OrgID: "org-1",
		Permissions: mustCompile(t, []Permission{{Resource: "cases/*", Action: ActionAny}}),
	}
	for _, action := range []Action{ActionRead, ActionWrite, ActionDelete} {
		if d := ev.AuthorizeRoute(p, "cases/123", action, testCtx()); !d.Allow {
			t.Fatalf("prefix wildcard with any action should grant %s: %s", action, d.Reason)
		}
	}
	if d := ev.AuthorizeRoute(p, "documents/123", ActionRead, testCtx()); d.Allow {
		t.Fatal("expansion must not widen the resource pattern")
	}
}

func TestCompilePermissions_ExpandsPrefixWildcardAnyAction(t *testing.T) {
	cond := []Condition{{Field: "status", Op: OpEquals, Value: "open"}}
	compiled, err := CompilePermissions([]Permission{
		{Resource: "cases/*", Action: ActionAny, Conditions: cond},
		{Resource: "cases", Action: ActionRead},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(compiled) != 4 {
		t.Fatalf("compiled to %d permissions, want 4", len(compiled))
	}
	seen := map[Action]bool{}
	for _, p := range compiled[:3] {
		if p.Resource != "cases/*" {
			t.Fatalf("expanded resource = %q", p.Resource)
		}
		if len(p.Conditions) != 1 {
			t.Fatalf("expansion dropped conditions: %+v", p)
		}
		seen[p.Action] = true
	}
	if !seen[ActionRead] || !seen[ActionWrite] || !seen[ActionDelete] {
		t.Fatalf("expansion missing an action: %v", seen)
	}
}

func TestAuthorize_ParentImpliesChild(t *testing.T) {
	ev := NewEvaluator(nil)
	p := Principal{
		ID: "user-1", OrgID: "org-1",
		Permissions: mustCompile(t, []Permission{{Resource: "cases", Action: ActionRead}}),
	}
	if d := ev.AuthorizeRoute(p, "cases/7/notes", ActionRead, testCtx()); !d.Allow {
		t.Fatalf("parent grant should imply child: %s", d.Reason)
	}
	if d := ev.AuthorizeRoute(p, "casesarchive", ActionRead, testCtx()); d.Allow {
		t.Fatal("prefix must respect the path separator boundary")
	}
}

func TestAuthorize_RoleUnion(t *testing.T) {
	roles := []Role{
		{Name: "reader", Permissions: mustCompile(t, []Permission{{Resource: "cases/*", Action: ActionRead}})},
		{Name: "editor", Permissions: mustCompile(t, []Permission{{Resource: "cases", Action: ActionWrite}})},
	}
	ev := NewEvaluator(roles)
	p := Principal{ID: "user-1", OrgID: "org-1", Roles: []string{"reader", "editor"}}
	if d := ev.AuthorizeRoute(p, "cases/5", ActionRead, testCtx()); !d.Allow {
		t.Fatalf("reader role should grant read: %s", d.Reason)
	}
	if d := ev.AuthorizeRoute(p, "cases", ActionWrite, testCtx()); !d.Allow {
		t.Fatalf("editor role should grant write: %s", d.Reason)
	}
	if d := ev.AuthorizeRoute(p, "cases", ActionDelete, testCtx()); d.Allow {
		t.Fatal("no role grants delete")
	}
}

func TestAuthorize_DedupPrefersUnconditioned(t *testing.T) {
	conditioned := Permission{
		Resource: "cases", Action: ActionRead,
		Conditions: []Condition{{Field: "status", Op: OpEquals, Value: "open"}},
	}
	plain := Permission{Resource: "cases", Action: ActionRead}
	roles := []Role{
		{Name: "narrow", Permissions: mustCompile(t, []Permission{conditioned})},
		{Name: "broad", Permissions: mustCompile(t, []Permission{plain})},
	}
	ev := NewEvaluator(roles)
	p := Principal{ID: "user-1", OrgID: "org-1", Roles: []string{"narrow", "broad"}}
	// the unconditioned duplicate must win, so closed cases are readable
	d := ev.Authorize(p, "cases", ActionRead, map[string]any{"org_id": "org-1", "status": "closed"}, testCtx())
	if !d.Allow {
		t.Fatalf("unconditioned duplicate should shadow the conditioned one: %s", d.Reason)
	}
}

func TestAuthorize_ConditionOperators(t *testing.T) {
	cases := []struct {
		name string
		cond Condition
		data map[string]any
		want bool
	}{
		{"eq match", Condition{Field: "status", Op: OpEquals, Value: "open"}, map[string]any{"status": "open"}, true},
		{"eq mismatch", Condition{Field: "status", Op: OpEquals, Value: "open"}, map[string]any{"status": "closed"}, false},
		{"neq", Condition{Field: "status", Op: OpNotEquals, Value: "closed"}, map[string]any{"status": "open"}, true},
		{"in", Condition{Field: "status", Op: OpIn, Value: []any{"open", "pending"}}, map[string]any{"status": "pending"}, true},
		{"nin", Condition{Field: "status", Op: OpNotIn, Value: []any{"archived"}}, map[string]any{"status": "open"}, true},
		{"contains", Condition{Field: "title", Op: OpContains, Value: "urgent"}, map[string]any{"title": "very urgent case"}, true},
		{"prefix", Condition{Field: "id", Op: OpPrefix, Value: "case-"}, map[string]any{"id": "case-17"}, true},
		{"missing field", Condition{Field: "owner", Op: OpEquals, Value: "x"}, map[string]any{"status": "open"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			perm := Permission{Resource: "cases", Action: ActionRead, Conditions: []Condition{tc.cond}}
			ev := NewEvaluator(nil)
			p := Principal{ID: "user-1", OrgID: "org-1", Permissions: mustCompile(t, []Permission{perm})}
			data := tc.data
			data["org_id"] = "org-1"
			d := ev.Authorize(p, "cases", ActionRead, data, testCtx())
			if d.Allow != tc.want {
				t.Fatalf("want allow=%v, got %v (%s)", tc.want, d.Allow, d.Reason)
			}
		})
	}
}

func TestAuthorize_PlaceholderSubstitution(t *testing.T) {
	perm := Permission{
		Resource: "cases", Action: ActionRead,
		Conditions: []Condition{{Field: "owner_id", Op: OpEquals, Value: "{{principal.id}}"}},
	}
	ev := NewEvaluator(nil)
	p := Principal{ID: "user-1", OrgID: "org-1", Permissions: mustCompile(t, []Permission{perm})}

	own := map[string]any{"org_id": "org-1", "owner_id": "user-1"}
	if d := ev.Authorize(p, "cases", ActionRead, own, testCtx()); !d.Allow {
		t.Fatalf("owner should read own case: %s", d.Reason)
	}
	other := map[string]any{"org_id": "org-1", "owner_id": "user-2"}
	if d := ev.Authorize(p, "cases", ActionRead, other, testCtx()); d.Allow {
		t.Fatal("owner condition must deny foreign cases")
	}
}

func TestAuthorize_UnknownPlaceholderDenies(t *testing.T) {
	perm := Permission{
		Resource: "cases", Action: ActionRead,
		Conditions: []Condition{{Field: "owner_id", Op: OpEquals, Value: "{{request.magic}}"}},
	}
	ev := NewEvaluator(nil)
	p := Principal{ID: "user-1", OrgID: "org-1", Permissions: mustCompile(t, []Permission{perm})}
	d := ev.Authorize(p, "cases", ActionRead, map[string]any{"org_id": "org-1", "owner_id": "user-1"}, testCtx())
	if d.Allow {
		t.Fatal("unknown placeholder must evaluate as condition-not-satisfied")
	}
}

func TestAuthorize_ConditionedNeedsData(t *testing.T) {
	perm := Permission{
		Resource: "cases", Action: ActionRead,
		Conditions: []Condition{{Field: "status", Op: OpEquals, Value: "open"}},
	}
	ev := NewEvaluator(nil)
	p := Principal{ID: "user-1", OrgID: "org-1", Permissions: mustCompile(t, []Permission{perm})}

	// route-level: explicit opt in, provisional grant
	if d := ev.AuthorizeRoute(p, "cases", ActionRead, testCtx()); !d.Allow {
		t.Fatalf("route-level check should provisionally allow: %s", d.Reason)
	}
	// object-level without data: fail closed
	if d := ev.Authorize(p, "cases", ActionRead, nil, testCtx()); d.Allow {
		t.Fatal("object-level check without resource data must deny")
	}
}

func TestAuthorize_TenantIsolation(t *testing.T) {
	roles := []Role{
		{Name: "support", CrossTenant: true, Permissions: mustCompile(t, []Permission{{Resource: "*", Action: ActionAny}})},
	}
	ev := NewEvaluator(roles)

	p := Principal{
		ID: "user-1", OrgID: "org-1",
		Permissions: mustCompile(t, []Permission{{Resource: "*", Action: ActionAny}}),
	}
	foreign := map[string]any{"org_id": "org-2"}
	if d := ev.Authorize(p, "cases/9", ActionRead, foreign, testCtx()); d.Allow {
		t.Fatal("foreign tenant resource must be denied without the override role")
	}

	admin := Principal{ID: "user-2", OrgID: "org-1", Roles: []string{"support"}}
	if d := ev.Authorize(admin, "cases/9", ActionRead, foreign, testCtx()); !d.Allow {
		t.Fatalf("cross-tenant role should override isolation: %s", d.Reason)
	}
}

func TestAuthorize_PrecedenceOrder(t *testing.T) {
	// a conditioned exact grant and a global wildcard both match; the
	// wildcard tier runs first, so no condition applies
	perms := mustCompile(t, []Permission{
		{Resource: "cases", Action: ActionRead, Conditions: []Condition{{Field: "status", Op: OpEquals, Value: "open"}}},
		{Resource: "*", Action: ActionAny},
	})
	ev := NewEvaluator(nil)
	p := Principal{ID: "user-1", OrgID: "org-1", Permissions: perms}
	d := ev.Authorize(p, "cases", ActionRead, map[string]any{"org_id": "org-1", "status": "closed"}, testCtx())
	if !d.Allow {
		t.Fatalf("global wildcard tier should win: %s", d.Reason)
	}
}
