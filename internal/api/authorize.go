package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentra-io/sentra-backend/internal/authz"
)

// ResourceFunc names the resource a route touches, e.g. "cases" for the
// collection or "cases/"+id for one object.
type ResourceFunc func(c *gin.Context) string

// StaticResource names a fixed resource.
func StaticResource(resource string) ResourceFunc {
	return func(*gin.Context) string { return resource }
}

// ParamResource joins a fixed prefix with a route parameter.
func ParamResource(prefix, param string) ResourceFunc {
	return func(c *gin.Context) string { return prefix + "/" + c.Param(param) }
}

// RequirePermission performs the route-level authorization stage.
// Handlers loading concrete objects re-check with Evaluator.Authorize and
// the loaded data; the route-level pass alone is not sound for
// object-level decisions.
func RequirePermission(ev *authz.Evaluator, action authz.Action, resource ResourceFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := FromContext(c)
		if rc == nil {
			abortError(c, http.StatusForbidden, "permission_denied", "Access denied")
			return
		}
		target := resource(c)
		decision := ev.AuthorizeRoute(rc.Principal, target, action, rc.EvalContext())
		recordDecision(decision.Allow)
		if !decision.Allow {
			abortError(c, http.StatusForbidden, "permission_denied", "Access denied: "+decision.Reason)
			return
		}
		c.Next()
	}
}

// authorizeObject is the handler-side object-level check.
func authorizeObject(c *gin.Context, ev *authz.Evaluator, resource string, action authz.Action, data map[string]any) bool {
	rc := FromContext(c)
	if rc == nil {
		abortError(c, http.StatusForbidden, "permission_denied", "Access denied")
		return false
	}
	decision := ev.Authorize(rc.Principal, resource, action, data, rc.EvalContext())
	recordDecision(decision.Allow)
	if !decision.Allow {
		abortError(c, http.StatusForbidden, "permission_denied", "Access denied: "+decision.Reason)
		return false
	}
	return true
}
