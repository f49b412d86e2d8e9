package session

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/clonepages/kit"
	"github.com/hazyhaar/clonepages/update"
)

// RegisterMCP registers the session tools on an MCP server.
func (m *Manager) RegisterMCP(srv *mcp.Server) {
	m.registerOpenTool(srv)
	m.registerSectionsTool(srv)
	m.registerSelectTool(srv)
	m.registerApplyTool(srv)
	m.registerHTMLTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var sessionProp = map[string]any{"type": "string", "description": "Session id returned by clonepages_open"}

func (m *Manager) endpoint(op string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(m.cfg.Logger, op))(e)
}

// --- open ---

type openRequest struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id,omitempty"`
}

func (r *openRequest) SessionKey() string { return r.SessionID }

func (m *Manager) registerOpenTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clonepages_open",
		Description: "Clone a web page into an editing session. Reuses session_id when given, otherwise creates a session.",
		InputSchema: inputSchema(map[string]any{
			"url":        map[string]any{"type": "string", "description": "Page URL to clone"},
			"session_id": sessionProp,
		}, []string{"url"}),
	}
	kit.RegisterMCPTool(srv, tool, m.endpoint("open", func(ctx context.Context, req any) (any, error) {
		r := req.(*openRequest)
		if r.SessionID == "" {
			s, err := m.Open(ctx, r.URL)
			if err != nil {
				return nil, err
			}
			return s.Status(), nil
		}
		s, err := m.Get(r.SessionID)
		if err != nil {
			return nil, err
		}
		if err := m.Load(ctx, s, r.URL); err != nil {
			return nil, err
		}
		return s.Status(), nil
	}), kit.DecodeJSON[openRequest]())
}

// --- sections ---

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (r *sessionRequest) SessionKey() string { return r.SessionID }

func (m *Manager) registerSectionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clonepages_sections",
		Description: "List the sections of the cloned page with their category, confidence and anchor id.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionProp}, []string{"session_id"}),
	}
	kit.RegisterMCPTool(srv, tool, m.endpoint("sections", func(ctx context.Context, req any) (any, error) {
		s, err := m.Get(req.(*sessionRequest).SessionID)
		if err != nil {
			return nil, err
		}
		return s.Editor.Sections(ctx)
	}), kit.DecodeJSON[sessionRequest]())
}

// --- select ---

type selectToolRequest struct {
	SessionID string `json:"session_id"`
	XPath     string `json:"xpath"`
}

func (r *selectToolRequest) SessionKey() string { return r.SessionID }

func (m *Manager) registerSelectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clonepages_select",
		Description: "Select the element at an xpath and describe it: tag, text, attributes, styles, enclosing section.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp,
			"xpath":      map[string]any{"type": "string", "description": "Positional xpath such as /html/body/div[2]/h1"},
		}, []string{"session_id", "xpath"}),
	}
	kit.RegisterMCPTool(srv, tool, m.endpoint("select", func(ctx context.Context, req any) (any, error) {
		r := req.(*selectToolRequest)
		s, err := m.Get(r.SessionID)
		if err != nil {
			return nil, err
		}
		return s.Editor.Select(ctx, r.XPath)
	}), kit.DecodeJSON[selectToolRequest]())
}

// --- apply ---

type applyRequest struct {
	SessionID string                 `json:"session_id"`
	Updates   []update.ElementUpdate `json:"updates"`
}

func (r *applyRequest) SessionKey() string { return r.SessionID }

func (m *Manager) registerApplyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clonepages_apply",
		Description: "Apply element updates (style, attribute, content, link) to the cloned page. The batch is rejected if any update is invalid.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp,
			"updates": map[string]any{
				"type": "array",
				"items": inputSchema(map[string]any{
					"xpath":    map[string]any{"type": "string"},
					"type":     map[string]any{"type": "string", "enum": []any{"style", "attribute", "content", "link", "remove-link"}},
					"property": map[string]any{"type": "string"},
					"value":    map[string]any{"type": "string"},
					"metadata": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
				}, []string{"xpath", "type"}),
			},
		}, []string{"session_id", "updates"}),
	}
	kit.RegisterMCPTool(srv, tool, m.endpoint("apply", func(ctx context.Context, req any) (any, error) {
		r := req.(*applyRequest)
		s, err := m.Get(r.SessionID)
		if err != nil {
			return nil, err
		}
		if err := s.Editor.Apply(ctx, r.Updates...); err != nil {
			return nil, err
		}
		return map[string]int{"accepted": len(update.Compact(r.Updates))}, nil
	}), kit.DecodeJSON[applyRequest]())
}

// --- html ---

func (m *Manager) registerHTMLTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clonepages_html",
		Description: "Return the current HTML of the cloned page with all applied updates.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionProp}, []string{"session_id"}),
	}
	kit.RegisterMCPTool(srv, tool, m.endpoint("html", func(ctx context.Context, req any) (any, error) {
		s, err := m.Get(req.(*sessionRequest).SessionID)
		if err != nil {
			return nil, err
		}
		doc, err := s.Editor.HTML(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"html": doc}, nil
	}), kit.DecodeJSON[sessionRequest]())
}
