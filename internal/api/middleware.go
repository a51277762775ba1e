package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sentra-io/sentra-backend/internal/keyauth"
	"github.com/sentra-io/sentra-backend/internal/ratelimit"
)

// RequestContextMiddleware builds the per-request context. Excluded paths
// skip straight through without allocating anything.
func RequestContextMiddleware(filter *PathFilter, maxBody int) gin.HandlerFunc {
	if maxBody <= 0 {
		maxBody = 8192
	}
	return func(c *gin.Context) {
		if filter.Excluded(c.Request.URL.Path) {
			c.Next()
			return
		}
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		rc := &RequestContext{
			RequestID: rid,
			Start:     time.Now(),
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		// capture a bounded copy of the body for auditing and restore it
		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			limited := io.LimitReader(c.Request.Body, int64(maxBody)+1)
			buf, err := io.ReadAll(limited)
			if err == nil {
				rest, _ := io.ReadAll(c.Request.Body)
				c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), bytes.NewReader(rest)))
				if len(buf) > maxBody {
					buf = buf[:maxBody]
				}
				rc.Body = buf
			}
		}
		c.Set(requestContextKey, rc)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// APIKeyAuthMiddleware resolves the credential from X-API-Key or a bearer
// Authorization header. A missing credential yields the anonymous
// principal; public routes stay reachable and the permission evaluator
// makes the call.
func APIKeyAuthMiddleware(auth *keyauth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := FromContext(c)
		if rc == nil {
			c.Next()
			return
		}
		raw := c.GetHeader("X-API-Key")
		if raw == "" {
			// A bearer token is only an API credential when it looks like
			// one; admin session JWTs share the Authorization header.
			if header := c.GetHeader("Authorization"); header != "" {
				parts := strings.SplitN(header, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") &&
					strings.HasPrefix(parts[1], keyauth.KeyIDPrefix) {
					raw = parts[1]
				}
			}
		}
		principal, err := auth.Authenticate(c.Request.Context(), raw)
		if err != nil {
			authFailure(c, err)
			return
		}
		rc.Principal = principal
		rc.Authenticated = !principal.Anonymous()
		c.Next()
	}
}

// RateLimitMiddleware counts the request and attaches the limit headers.
// A failed-open decision carries no headers; there was no decision.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := FromContext(c)
		if rc == nil {
			c.Next()
			return
		}
		subject := ratelimit.Subject{
			KeyID: rc.Principal.KeyID,
			IP:    rc.ClientIP,
			Plan:  rc.Principal.Plan,
		}
		if !rc.Principal.Anonymous() {
			subject.UserID = rc.Principal.ID
		}
		res := limiter.Check(c.Request.Context(), subject, c.Request.URL.Path)
		rc.RateLimit = &res
		if res.FailedOpen {
			rateLimitFailOpenTotal.Inc()
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", res.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", res.Reset.Unix()))
		if !res.Allowed {
			retry := int(res.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retry))
			rateLimitDeniedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Success:    false,
				Message:    "Rate limit exceeded. Try again later.",
				Code:       "rate_limited",
				RetryAfter: retry,
			})
			return
		}
		c.Next()
	}
}

// AdminAuthMiddleware guards operator endpoints with a session JWT.
func AdminAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Authorization header required")
			return
		}
		parts := strings.Split(header, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Authorization header format must be Bearer {token}")
			return
		}
		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Invalid token")
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Invalid token")
			return
		}
		if sub, _ := claims["user_id"].(string); sub != "" {
			c.Set("adminUserID", sub)
		}
		c.Next()
	}
}
