package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/clonepages/kit"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders_FrameAncestors(t *testing.T) {
	cfg := DefaultHeaders()
	cfg.FrameAncestors = []string{"https://editor.example", "'self'", " "}
	rec := httptest.NewRecorder()
	SecurityHeaders(cfg)(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("Content-Security-Policy"); got != "frame-ancestors 'self' https://editor.example" {
		t.Errorf("csp = %q", got)
	}
	if rec.Header().Get("X-Frame-Options") != "" {
		t.Error("X-Frame-Options set")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff missing")
	}
}

func TestTraceID(t *testing.T) {
	var seen string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = kit.GetTraceID(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("nil logger")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if len(seen) != 16 || rec.Header().Get("X-Trace-ID") != seen {
		t.Errorf("trace %q header %q", seen, rec.Header().Get("X-Trace-ID"))
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-ID", "upstream-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "upstream-1" {
		t.Errorf("incoming trace id not kept: %q", seen)
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		_, readErr = r.Body.Read(buf)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("0123456789")))
	if readErr == nil || readErr.Error() != "http: request body too large" {
		t.Errorf("read err = %v", readErr)
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("HEAD", "/", nil))
	if method != http.MethodGet {
		t.Errorf("method = %s", method)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(ok)

	do := func(ip string) int {
		req := httptest.NewRequest("POST", "/api/sessions", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i, want := range []int{200, 200, 429} {
		if got := do("203.0.113.7"); got != want {
			t.Fatalf("request %d: %d, want %d", i, got, want)
		}
	}
	if got := do("198.51.100.1"); got != 200 {
		t.Errorf("other client blocked: %d", got)
	}
	now = now.Add(2 * time.Minute)
	if got := do("203.0.113.7"); got != 200 {
		t.Errorf("window did not reset: %d", got)
	}
}
