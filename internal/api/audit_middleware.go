package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sentra-io/sentra-backend/internal/audit"
)

// AuditMiddleware records every piped request after its terminal response
// is known. The recorder is fire-and-forget; nothing here can delay or
// fail the response.
func AuditMiddleware(recorder *audit.Recorder, sanitizer *audit.Sanitizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		rc := FromContext(c)
		if rc == nil {
			return
		}
		status := c.Writer.Status()
		entry := audit.Entry{
			ID:          uuid.New(),
			Time:        rc.Start,
			RequestID:   rc.RequestID,
			PrincipalID: rc.Principal.ID,
			OrgID:       rc.Principal.OrgID,
			KeyID:       rc.Principal.KeyID,
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			Query:       sanitizer.Query(c.Request.URL.Query()),
			Body:        sanitizer.Body(rc.Body),
			Status:      status,
			Event:       audit.Classify(status, c.Request.Method, c.Request.URL.Path, rc.Authenticated),
			ClientIP:    rc.ClientIP,
			UserAgent:   rc.UserAgent,
			DurationMS:  time.Since(rc.Start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.String()
		}
		if rc.RateLimit != nil {
			entry.Metadata = map[string]any{
				"rate_limit":       rc.RateLimit.Limit,
				"rate_count":       rc.RateLimit.Count,
				"rate_failed_open": rc.RateLimit.FailedOpen,
			}
		}
		recorder.Record(entry)
		auditQueueDepth.Set(float64(recorder.QueueDepth()))
	}
}
