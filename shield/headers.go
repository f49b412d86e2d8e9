package shield

import (
	"net/http"
	"strings"
)

// HeaderConfig defines the security headers applied to every response.
// Cloned pages are displayed inside an editor's iframe, so framing is
// controlled with CSP frame-ancestors rather than X-Frame-Options.
type HeaderConfig struct {
	// FrameAncestors lists the origins allowed to embed responses.
	// Empty means 'self'.
	FrameAncestors      []string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// DefaultHeaders returns the standard header configuration.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=()",
	}
}

// CSP renders the Content-Security-Policy value.
func (c HeaderConfig) CSP() string {
	anc := []string{"'self'"}
	for _, o := range c.FrameAncestors {
		if o = strings.TrimSpace(o); o != "" && o != "'self'" {
			anc = append(anc, o)
		}
	}
	return "frame-ancestors " + strings.Join(anc, " ")
}

// SecurityHeaders returns middleware that sets the configured security
// headers on every response.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	csp := cfg.CSP()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", csp)
			if cfg.XContentTypeOptions != "" {
				h.Set("X-Content-Type-Options", cfg.XContentTypeOptions)
			}
			if cfg.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", cfg.ReferrerPolicy)
			}
			if cfg.PermissionsPolicy != "" {
				h.Set("Permissions-Policy", cfg.PermissionsPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}
