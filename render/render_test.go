package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hazyhaar/clonepages/horosafe"
)

func TestIntegrations_Query(t *testing.T) {
	in := Integrations{FacebookPixel: "123", GoogleAnalytics: " ", HotjarID: "42"}
	q, err := url.ParseQuery(in.Query("https://shop.example/lp?a=1"))
	if err != nil {
		t.Fatal(err)
	}
	if q.Get("url") != "https://shop.example/lp?a=1" {
		t.Errorf("url: %q", q.Get("url"))
	}
	if q.Get("fbPixel") != "123" || q.Get("hotjar") != "42" {
		t.Errorf("ids: %v", q)
	}
	if q.Has("ga") || q.Has("original") {
		t.Errorf("blank id or unset flag leaked: %v", q)
	}

	if !strings.Contains((Integrations{Original: true}).Query("x"), "original=true") {
		t.Error("original flag missing")
	}
}

func TestBackend_Load(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		if r.URL.Query().Get("url") == "https://fail.example" {
			http.Error(w, "upstream unreachable", http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html><body>cloned</body></html>"))
	}))
	defer srv.Close()

	b := &Backend{Endpoint: srv.URL + "/api/clone", Integrations: Integrations{GoogleTagManager: "GTM-1"}}
	body, err := b.Load(context.Background(), "https://a.example")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "<html><body>cloned</body></html>" {
		t.Errorf("body: %q", body)
	}
	if gotQuery.Get("gtm") != "GTM-1" {
		t.Errorf("query: %v", gotQuery)
	}

	_, err = b.Load(context.Background(), "https://fail.example")
	if !errors.Is(err, ErrLoad) || !strings.Contains(err.Error(), "upstream unreachable") {
		t.Fatalf("got %v", err)
	}
}

func TestAuto_Escalates(t *testing.T) {
	shell := Static{"https://spa.example": `<html><body><div id="root"></div></body></html>`}
	rendered := Static{"https://spa.example": `<html><body><div id="root"><h1>Rendered</h1></div></body></html>`}

	a := &Auto{HTTP: shell, Browser: rendered}
	body, err := a.Load(context.Background(), "https://spa.example")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "Rendered") {
		t.Errorf("expected browser result, got %s", body)
	}

	noBrowser := &Auto{HTTP: shell}
	body, err = noBrowser.Load(context.Background(), "https://spa.example")
	if err != nil || strings.Contains(string(body), "Rendered") {
		t.Errorf("without browser: %s, %v", body, err)
	}
}

func TestGuard(t *testing.T) {
	called := false
	next := LoaderFunc(func(context.Context, string) ([]byte, error) {
		called = true
		return []byte("ok"), nil
	})

	if _, err := Guard(next, false).Load(context.Background(), "http://127.0.0.1:8080/"); !errors.Is(err, horosafe.ErrSSRF) {
		t.Fatalf("got %v, want ErrSSRF", err)
	}
	if called {
		t.Fatal("guarded loader was called")
	}

	if _, err := Guard(next, true).Load(context.Background(), "http://127.0.0.1:8080/"); err != nil {
		t.Fatalf("allowPrivate: %v", err)
	}
	if _, err := Guard(next, true).Load(context.Background(), "file:///etc/passwd"); !errors.Is(err, horosafe.ErrUnsafeScheme) {
		t.Fatalf("got %v, want ErrUnsafeScheme", err)
	}
}

func TestStatic_Missing(t *testing.T) {
	if _, err := (Static{}).Load(context.Background(), "https://none.example"); !errors.Is(err, ErrLoad) {
		t.Fatalf("got %v", err)
	}
}
