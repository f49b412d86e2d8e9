package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	editorOrigin = "https://editor.example"
	frameOrigin  = "https://frame.example"
)

func TestDecode_Shapes(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{"frame ready", `{"source":"CLONEPAGES_IFRAME","type":"FRAME_READY","url":"https://a.example"}`, true},
		{"clone error", `{"source":"CLONEPAGES_IFRAME","type":"CLONE_ERROR","error":"boom","url":"https://a.example"}`, true},
		{"apply update", `{"source":"CLONEPAGES_EDITOR","type":"APPLY_UPDATE","payload":{"xpath":"/html/body","type":"style","property":"color","value":"red"}}`, true},
		{"not json", `hello`, false},
		{"array", `[1,2]`, false},
		{"missing source", `{"type":"FRAME_READY"}`, false},
		{"foreign source", `{"source":"OTHER_APP","type":"FRAME_READY"}`, false},
		{"unknown type", `{"source":"CLONEPAGES_IFRAME","type":"RESIZE"}`, false},
		{"clone error without error", `{"source":"CLONEPAGES_IFRAME","type":"CLONE_ERROR","url":"x"}`, false},
		{"apply without payload", `{"source":"CLONEPAGES_EDITOR","type":"APPLY_UPDATE"}`, false},
		{"apply bad metadata", `{"source":"CLONEPAGES_EDITOR","type":"APPLY_UPDATE","payload":{"xpath":"/a","type":"link","metadata":{"target":1}}}`, false},
		{"load without url", `{"source":"CLONEPAGES_EDITOR","type":"LOAD_URL"}`, false},
		{"result without reply_to", `{"source":"CLONEPAGES_IFRAME","type":"HTML_RESULT","payload":"<html></html>"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrUnrecognizedShape) {
				t.Fatalf("got %v, want ErrUnrecognizedShape", err)
			}
		})
	}
}

func TestEncode_RejectsInvalid(t *testing.T) {
	if _, err := Encode(Envelope{Source: SourceFrame, Type: TypeCloneError}); !errors.Is(err, ErrUnrecognizedShape) {
		t.Fatalf("got %v", err)
	}
}

func TestNormalizeOrigin(t *testing.T) {
	tests := map[string]string{
		"https://Example.COM":          "https://example.com",
		"https://example.com:443/path": "https://example.com",
		"http://example.com:8080":      "http://example.com:8080",
		"ws://127.0.0.1:9000/ws":       "http://127.0.0.1:9000",
		"wss://example.com":            "https://example.com",
		"null":                         "",
		"":                             "",
		"file:///etc/passwd":           "",
		"example.com":                  "",
	}
	for in, want := range tests {
		if got := NormalizeOrigin(in); got != want {
			t.Errorf("NormalizeOrigin(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOriginPolicies(t *testing.T) {
	same := SameOrigin(editorOrigin)
	if !same.Allow("https://editor.example:443") {
		t.Error("same origin with default port rejected")
	}
	if same.Allow(frameOrigin) || same.Allow("") {
		t.Error("foreign or empty origin accepted")
	}

	list := AllowList(editorOrigin, "http://localhost:3000")
	if !list.Allow("http://localhost:3000") || list.Allow("http://localhost:3001") {
		t.Error("allow list mismatch")
	}
	if !AllowList("*").Allow(frameOrigin) || AllowList("*").Allow("") {
		t.Error("wildcard mismatch")
	}
}

func TestPipe_OrderAndOrigin(t *testing.T) {
	a, b := Pipe(editorOrigin, frameOrigin)
	defer a.Close()
	ctx := context.Background()

	for _, v := range []string{"1", "2", "3"} {
		env := Envelope{Source: SourceEditor, Type: TypeLoadURL, URL: "https://x.example/" + v}
		if err := a.Send(ctx, env); err != nil {
			t.Fatal(err)
		}
	}
	for _, v := range []string{"1", "2", "3"} {
		msg, err := b.Receive(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if msg.Origin != editorOrigin {
			t.Errorf("origin: got %q", msg.Origin)
		}
		if !strings.HasSuffix(msg.URL, "/"+v) {
			t.Errorf("order: got %q, want suffix %q", msg.URL, v)
		}
	}
}

func TestPipe_Closed(t *testing.T) {
	a, b := Pipe(editorOrigin, frameOrigin)
	a.Close()
	if err := a.Send(context.Background(), Envelope{Source: SourceEditor, Type: TypeGetHTML}); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close: %v", err)
	}
	if _, err := b.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("receive after close: %v", err)
	}
}

// pair builds an editor endpoint and a frame endpoint over a pipe and
// runs both until the test ends.
func pair(t *testing.T, timeout time.Duration) (editor, frame *Endpoint, editorConn, frameConn *PipeConn) {
	t.Helper()
	editorConn, frameConn = Pipe(editorOrigin, frameOrigin)
	editor = NewEndpoint(editorConn, Config{
		Source: SourceEditor, Peer: SourceFrame,
		Policy: OriginFunc(func(o string) bool { return o == frameOrigin }), ReplyTimeout: timeout,
	})
	frame = NewEndpoint(frameConn, Config{
		Source: SourceFrame, Peer: SourceEditor,
		Policy: AllowList(editorOrigin), ReplyTimeout: timeout,
	})
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); editor.Run(ctx) }()
	go func() { defer wg.Done(); frame.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		editorConn.Close()
		wg.Wait()
	})
	return editor, frame, editorConn, frameConn
}

func TestEndpoint_RequestReply(t *testing.T) {
	editor, frame, _, _ := pair(t, 200*time.Millisecond)
	frame.Handle(TypeGetHTML, func(ctx context.Context, msg Message) {
		frame.Reply(ctx, msg, TypeHTMLResult, "<html></html>")
	})

	msg, err := editor.Request(context.Background(), TypeGetHTML, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	var html string
	if err := msg.DecodePayload(&html); err != nil {
		t.Fatal(err)
	}
	if html != "<html></html>" {
		t.Errorf("payload: %q", html)
	}
}

func TestEndpoint_TimeoutThenLateReply(t *testing.T) {
	editor, frame, _, _ := pair(t, 100*time.Millisecond)

	release := make(chan struct{})
	replied := make(chan struct{})
	frame.Handle(TypeGetHTML, func(ctx context.Context, msg Message) {
		go func() {
			<-release
			frame.Reply(ctx, msg, TypeHTMLResult, "late")
			close(replied)
		}()
	})

	start := time.Now()
	msg, err := editor.Request(context.Background(), TypeGetHTML, nil, 0)
	if !errors.Is(err, ErrCommsTimeout) {
		t.Fatalf("got %v, want ErrCommsTimeout", err)
	}
	if msg.ID != "" || len(msg.Payload) != 0 {
		t.Errorf("timeout must return an empty message: %+v", msg)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("request did not honour its timeout")
	}

	close(release)
	<-replied
	deadline := time.Now().Add(2 * time.Second)
	for editor.Stats().LateReply == 0 {
		if time.Now().After(deadline) {
			t.Fatal("late reply was not dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if editor.pending.len() != 0 {
		t.Error("pending table not empty")
	}
}

func TestPending_SingleResolution(t *testing.T) {
	p := newPending()
	ch := p.add("x")

	var wg sync.WaitGroup
	results := make(chan bool, 3)
	wg.Add(3)
	go func() { defer wg.Done(); results <- p.resolve(Message{Envelope: Envelope{ReplyTo: "x"}}) }()
	go func() { defer wg.Done(); results <- p.resolve(Message{Envelope: Envelope{ReplyTo: "x"}}) }()
	go func() { defer wg.Done(); results <- p.cancel("x") }()
	wg.Wait()
	close(results)

	wins := 0
	for r := range results {
		if r {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("settled %d times, want 1", wins)
	}
	select {
	case <-ch:
	default:
	}
	if p.len() != 0 {
		t.Error("entry left behind")
	}
}

func TestEndpoint_DropsForeignOrigin(t *testing.T) {
	conn, peer := Pipe("https://evil.example", frameOrigin)
	ep := NewEndpoint(peer, Config{Source: SourceEditor, Policy: SameOrigin(editorOrigin)})

	got := make(chan Message, 1)
	ep.Handle(TypeCloneError, func(_ context.Context, m Message) { got <- m })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ep.Run(ctx); close(done) }()
	defer func() { cancel(); <-done }()

	if err := conn.Send(ctx, Envelope{Source: SourceFrame, Type: TypeCloneError, Error: "x", URL: "u"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.SendRaw(ctx, []byte(`{"nonsense":true}`)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		s := ep.Stats()
		if s.Origin == 1 && s.Shape == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stats: %+v", s)
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case m := <-got:
		t.Fatalf("handler ran for a rejected message: %+v", m)
	default:
	}
}

func TestWebSocket_RoundTrip(t *testing.T) {
	accepted := make(chan *WSConn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Accept(w, r, AllowList(editorOrigin))
		if err != nil {
			return
		}
		accepted <- c
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, wsURL, editorOrigin)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	server := <-accepted
	defer server.Close()

	if err := client.Send(ctx, Envelope{Source: SourceEditor, Type: TypeLoadURL, URL: "https://a.example"}); err != nil {
		t.Fatal(err)
	}
	msg, err := server.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Origin != editorOrigin || msg.Type != TypeLoadURL {
		t.Errorf("server got %+v", msg)
	}

	if err := server.Send(ctx, Envelope{Source: SourceFrame, Type: TypeFrameReady, URL: "https://a.example"}); err != nil {
		t.Fatal(err)
	}
	msg, err = client.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeFrameReady || msg.Origin != NormalizeOrigin(srv.URL) {
		t.Errorf("client got %+v", msg)
	}
}

func TestWebSocket_RejectsOrigin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := Accept(w, r, AllowList(editorOrigin)); err == nil {
			t.Error("handshake accepted a foreign origin")
		}
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, err := Dial(context.Background(), wsURL, "https://evil.example")
	if !errors.Is(err, ErrOriginRejected) {
		t.Fatalf("got %v, want ErrOriginRejected", err)
	}
}
