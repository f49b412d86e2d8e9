package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/clonepages/update"
)

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	ctx := context.Background()
	if err := s.Emit(ctx, Event{Kind: KindFrameReady, SessionID: "s1", URL: "https://a.test"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Emit(ctx, Event{Kind: KindUpdate, Outcome: update.OutcomeMiss}); err != nil {
		t.Fatal(err)
	}

	dec := json.NewDecoder(&buf)
	var first, second Event
	if err := dec.Decode(&first); err != nil {
		t.Fatal(err)
	}
	if err := dec.Decode(&second); err != nil {
		t.Fatal(err)
	}
	if first.Kind != KindFrameReady || first.SessionID != "s1" {
		t.Errorf("first = %+v", first)
	}
	if second.Outcome != update.OutcomeMiss {
		t.Errorf("second = %+v", second)
	}
}

func TestRouter_FanOutFirstError(t *testing.T) {
	var a, b int
	boom := errors.New("boom")
	r := NewRouter(nil,
		NewCallback(func(context.Context, Event) error { a++; return boom }),
		nil,
		NewCallback(func(context.Context, Event) error { b++; return nil }),
	)
	err := r.Emit(context.Background(), Event{Kind: KindExport})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if a != 1 || b != 1 {
		t.Errorf("deliveries a=%d b=%d, want 1/1", a, b)
	}
	if err := r.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Kind != KindCloneError {
			t.Errorf("bad body: %v %+v", err, ev)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.Emit(context.Background(), Event{Kind: KindCloneError, Detail: "x"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	if err := w.Emit(context.Background(), Event{Kind: KindUpdate}); err == nil {
		t.Fatal("expected error")
	}
}
