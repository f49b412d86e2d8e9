package transport

import (
	"net/url"
	"strings"
)

// OriginPolicy decides whether messages from an origin are processed.
type OriginPolicy interface {
	Allow(origin string) bool
}

// OriginFunc adapts a function to OriginPolicy.
type OriginFunc func(origin string) bool

// Allow implements OriginPolicy.
func (f OriginFunc) Allow(origin string) bool { return f(origin) }

// SameOrigin accepts only messages from self. It guards the editor:
// frame reports must come from the editor's own origin.
func SameOrigin(self string) OriginPolicy {
	want := NormalizeOrigin(self)
	return OriginFunc(func(origin string) bool {
		return want != "" && NormalizeOrigin(origin) == want
	})
}

// AllowList accepts the listed origins. "*" accepts any non-empty origin.
// It guards the frame, which runs at a different origin than the editor.
func AllowList(origins ...string) OriginPolicy {
	set := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
			continue
		}
		if n := NormalizeOrigin(o); n != "" {
			set[n] = true
		}
	}
	return OriginFunc(func(origin string) bool {
		n := NormalizeOrigin(origin)
		if n == "" {
			return false
		}
		return wildcard || set[n]
	})
}

// NormalizeOrigin reduces s to scheme://host[:port] in lower case with
// default ports dropped. ws and wss map to http and https. Anything that
// is not an absolute http(s) or ws(s) URL yields "".
func NormalizeOrigin(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	case "http", "https":
	default:
		return ""
	}
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return scheme + "://" + host + ":" + port
	}
	return scheme + "://" + host
}
