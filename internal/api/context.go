package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentra-io/sentra-backend/internal/authz"
	"github.com/sentra-io/sentra-backend/internal/ratelimit"
)

const requestContextKey = "sentraRequestContext"

// RequestContext accumulates per-request state as pipeline stages
// complete. Each stage writes only its own fields; nothing here is shared
// across requests.
type RequestContext struct {
	RequestID string
	Start     time.Time
	ClientIP  string
	UserAgent string

	// set by the authentication stage
	Principal     authz.Principal
	Authenticated bool

	// set by the rate-limit stage
	RateLimit *ratelimit.Result

	// raw body captured for auditing, already length-bounded
	Body []byte
}

// FromContext returns the request context, or nil on excluded paths.
func FromContext(c *gin.Context) *RequestContext {
	v, ok := c.Get(requestContextKey)
	if !ok {
		return nil
	}
	rc, _ := v.(*RequestContext)
	return rc
}

// EvalContext exposes the closed field set for condition placeholders.
func (rc *RequestContext) EvalContext() authz.EvalContext {
	return authz.EvalContext{
		PrincipalID: rc.Principal.ID,
		OrgID:       rc.Principal.OrgID,
		ClientIP:    rc.ClientIP,
		Now:         rc.Start,
	}
}

// PathFilter decides which paths bypass the pipeline entirely. It is
// consulted before any per-request allocation.
type PathFilter struct {
	prefixes []string
}

func NewPathFilter(prefixes []string) *PathFilter {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return &PathFilter{prefixes: out}
}

// Excluded reports whether path bypasses the pipeline.
func (f *PathFilter) Excluded(path string) bool {
	for _, p := range f.prefixes {
		if path == p || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
