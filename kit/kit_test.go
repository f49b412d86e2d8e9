package kit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(base)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}

	noop := func(next Endpoint) Endpoint { return next }
	chained := Chain(noop)(base)

	_, err := chained(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext_Transport_Default(t *testing.T) {
	ctx := context.Background()
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
}

func TestContext_Transport_Set(t *testing.T) {
	ctx := WithTransport(context.Background(), "mcp")
	if v := GetTransport(ctx); v != "mcp" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_TraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trc_xyz")
	if v := GetTraceID(ctx); v != "trc_xyz" {
		t.Fatalf("trace_id: got %q", v)
	}
}

func TestContext_EmptyDefaults(t *testing.T) {
	ctx := context.Background()
	if v := GetSessionID(ctx); v != "" {
		t.Fatalf("session default: got %q", v)
	}
	if v := GetTraceID(ctx); v != "" {
		t.Fatalf("trace_id default: got %q", v)
	}
}

func TestContext_SessionID(t *testing.T) {
	ctx := WithSessionID(context.Background(), "0193-abc")
	if v := GetSessionID(ctx); v != "0193-abc" {
		t.Fatalf("session: got %q", v)
	}
}

func TestLogging_PassesThrough(t *testing.T) {
	base := func(_ context.Context, req any) (any, error) { return req, nil }
	ep := Logging(nil, "echo")(base)
	resp, err := ep(context.Background(), "x")
	if err != nil || resp != "x" {
		t.Fatalf("got %v, %v", resp, err)
	}
}

type scopedRequest struct {
	Session string `json:"session"`
}

func (r *scopedRequest) SessionKey() string { return r.Session }

func TestRegisterMCPTool_SessionScoped(t *testing.T) {
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "whoami",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req any) (any, error) {
		if req.(*scopedRequest).Session == "fail" {
			return nil, errors.New("boom")
		}
		return map[string]string{"transport": GetTransport(ctx), "session": GetSessionID(ctx)}, nil
	}, DecodeJSON[scopedRequest]())

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "whoami", Arguments: map[string]any{"session": "s1"}})
	if err != nil {
		t.Fatal(err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if !strings.Contains(text, `"session":"s1"`) || !strings.Contains(text, `"transport":"mcp"`) {
		t.Errorf("result = %s", text)
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "whoami", Arguments: map[string]any{"session": "fail"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("endpoint error not reported as tool error")
	}
}
