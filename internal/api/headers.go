package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig drives the unconditional response hardening.
type SecurityHeadersConfig struct {
	FrameOption           string   // DENY or SAMEORIGIN
	CSPDirectives         []string // e.g. "default-src 'self'"
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	Production            bool
}

// SecurityHeadersMiddleware attaches hardening headers to every response,
// including short-circuited ones: it runs first and writes headers before
// handing control onward.
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig) gin.HandlerFunc {
	frame := cfg.FrameOption
	if frame != "SAMEORIGIN" {
		frame = "DENY"
	}
	csp := strings.Join(trimAll(cfg.CSPDirectives), "; ")
	hsts := buildHSTS(cfg)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", frame)
		if csp != "" {
			h.Set("Content-Security-Policy", csp)
		}
		if hsts != "" && (c.Request.TLS != nil || cfg.Production) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

func buildHSTS(cfg SecurityHeadersConfig) string {
	if cfg.HSTSMaxAge <= 0 {
		return ""
	}
	v := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
	if cfg.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	if cfg.HSTSPreload {
		v += "; preload"
	}
	return v
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
