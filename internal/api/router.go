package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentra-io/sentra-backend/internal/authz"
)

// BuildRouter assembles the pipeline. Middleware order is the pipeline
// order: headers first so even short-circuits carry them, then CORS
// (which terminates preflights), then context/metrics/audit wrapping the
// authenticated stages.
func BuildRouter(s *Server, db *sqlx.DB, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(extra...)

	if len(s.cfg.TrustedProxies) > 0 {
		_ = r.SetTrustedProxies(s.cfg.TrustedProxies)
	}

	r.Use(SecurityHeadersMiddleware(SecurityHeadersConfig{
		FrameOption:           s.cfg.FrameOption,
		CSPDirectives:         s.cfg.CSPDirectives,
		HSTSMaxAge:            s.cfg.HSTSMaxAge,
		HSTSIncludeSubdomains: s.cfg.HSTSIncludeSubdomains,
		HSTSPreload:           s.cfg.HSTSPreload,
		Production:            s.cfg.Production(),
	}))
	r.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))

	filter := NewPathFilter(s.cfg.BypassPaths)
	r.Use(MetricsMiddleware())
	r.Use(RequestContextMiddleware(filter, s.cfg.AuditMaxBody))
	r.Use(AuditMiddleware(s.recorder, s.sanitizer))

	// Excluded from the pipeline by the path filter.
	r.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	r.GET("/readyz", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
			defer cancel()
			if err := db.DB.PingContext(ctx); err != nil {
				c.JSON(503, gin.H{"status": "not ready", "error": err.Error()})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(APIKeyAuthMiddleware(s.auth))
	v1.Use(RateLimitMiddleware(s.limiter))
	{
		v1.GET("/status", s.Status)

		cases := v1.Group("/cases")
		{
			cases.GET("", RequirePermission(s.evaluator, authz.ActionRead, StaticResource("cases")), s.ListCases)
			cases.POST("", RequirePermission(s.evaluator, authz.ActionWrite, StaticResource("cases")), s.CreateCase)
			cases.GET("/:caseId", RequirePermission(s.evaluator, authz.ActionRead, ParamResource("cases", "caseId")), s.GetCase)
			cases.DELETE("/:caseId", RequirePermission(s.evaluator, authz.ActionDelete, ParamResource("cases", "caseId")), s.DeleteCase)
		}
	}

	admin := r.Group("/admin")
	admin.Use(APIKeyAuthMiddleware(s.auth))
	admin.Use(RateLimitMiddleware(s.limiter))
	admin.Use(AdminAuthMiddleware([]byte(s.cfg.JWTSecret)))
	{
		admin.POST("/keys", s.CreateAPIKey)
		admin.DELETE("/keys/:keyId", s.RevokeAPIKey)
		admin.GET("/audit", s.QueryAudit)
		admin.POST("/audit/cleanup", s.CleanupAudit)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		cfg.AllowAllOrigins = true
	}
	return cfg
}
