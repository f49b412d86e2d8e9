// Command clonepages serves the page cloning editor API: it clones web
// pages into editable sessions exposed over HTTP, websocket and MCP.
//
//	clonepages -config clonepages.yaml
//	clonepages -mcp stdio
//	clonepages -sections https://example.com/
//	curl -s https://example.com/ | clonepages -sections -
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/clonepages/dom"
	"github.com/hazyhaar/clonepages/internal/config"
	"github.com/hazyhaar/clonepages/internal/store"
	"github.com/hazyhaar/clonepages/render"
	"github.com/hazyhaar/clonepages/section"
	"github.com/hazyhaar/clonepages/selection"
	"github.com/hazyhaar/clonepages/session"
	"github.com/hazyhaar/clonepages/shield"
	"github.com/hazyhaar/clonepages/sink"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", env("CLONEPAGES_CONFIG", ""), "path to clonepages.yaml config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	mcpTransport := flag.String("mcp", "", "serve MCP instead of HTTP: stdio")
	sectionsOf := flag.String("sections", "", "print the sections of a URL (or - for stdin) and exit")
	flag.Parse()

	// Logs go to stderr so stdout stays clean for MCP stdio and -sections.
	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		slog.Error("config env", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loader, browser := buildLoader(cfg, logger)
	if browser != nil {
		defer browser.Close()
	}

	if *sectionsOf != "" {
		if err := printSections(ctx, loader, *sectionsOf); err != nil {
			slog.Error("sections", "error", err)
			os.Exit(1)
		}
		return
	}

	st, err := store.Open(cfg.DB)
	if err != nil {
		slog.Error("open store", "path", cfg.DB, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	events := buildSinks(cfg, logger)
	defer events.Close()

	mcfg := session.Config{
		Loader:        loader,
		Store:         st,
		Sink:          events,
		Origin:        cfg.PublicOrigin,
		EditorOrigins: cfg.EditorOrigins,
		LoadTimeout:   cfg.Timeouts.Load,
		ReplyTimeout:  cfg.Timeouts.Reply,
		Logger:        logger,
	}
	if browser != nil {
		mcfg.Measure = measureWith(browser)
	}
	manager := session.NewManager(mcfg)
	defer manager.Close()

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "clonepages", Version: version}, nil)
	manager.RegisterMCP(mcpSrv)

	if *mcpTransport == "stdio" {
		slog.Info("MCP stdio starting")
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("MCP stdio", "error", err)
			os.Exit(1)
		}
		return
	}

	r := chi.NewRouter()
	headers := shield.DefaultHeaders()
	headers.FrameAncestors = cfg.Origins()
	for _, mw := range shield.Stack(headers, cfg.MaxBody) {
		r.Use(mw)
	}
	var limit []func(http.Handler) http.Handler
	if cfg.RateLimit.Max > 0 {
		limit = append(limit, shield.NewRateLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window).Middleware)
	}
	manager.RegisterHTTP(r, limit...)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr, "render", cfg.Render.Mode, "origin", cfg.PublicOrigin)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// buildLoader assembles the page loader for the configured render mode.
// The browser is returned separately so it can be closed and used for
// element measurement.
func buildLoader(cfg *config.Config, logger *slog.Logger) (render.Loader, *render.Browser) {
	rc := cfg.Render
	newBrowser := func() *render.Browser {
		return render.NewBrowser(render.BrowserConfig{
			RemoteURL:        rc.Browser.Remote,
			ResourceBlocking: rc.Browser.ResourceBlocking,
			Stealth:          *rc.Browser.Stealth,
			NavTimeout:       rc.Browser.NavTimeout,
			Logger:           logger,
		})
	}

	var (
		loader  render.Loader
		browser *render.Browser
	)
	switch rc.Mode {
	case "backend":
		loader = &render.Backend{Endpoint: rc.Backend, Integrations: rc.Integrations}
	case "http":
		loader = render.NewHTTP(nil, logger)
	case "browser":
		browser = newBrowser()
		loader = browser
	default:
		browser = newBrowser()
		loader = &render.Auto{HTTP: render.NewHTTP(nil, logger), Browser: browser, Logger: logger}
	}
	return render.Guard(loader, rc.AllowPrivate), browser
}

func buildSinks(cfg *config.Config, logger *slog.Logger) sink.Sink {
	var sinks []sink.Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, sink.NewStdout(os.Stdout))
		case "webhook":
			sinks = append(sinks, sink.NewWebhook(sc.URL, sink.WithWebhookLogger(logger)))
		}
	}
	return sink.NewRouter(logger, sinks...)
}

func measureWith(b *render.Browser) func(ctx context.Context, document, xpath string) (selection.Rect, error) {
	return func(ctx context.Context, document, xpath string) (selection.Rect, error) {
		top, left, width, height, err := b.Measure(ctx, document, xpath)
		if err != nil {
			return selection.Rect{}, err
		}
		return selection.Rect{Top: top, Left: left, Width: width, Height: height}, nil
	}
}

// printSections classifies the sections of one page and writes them as
// JSON to stdout.
func printSections(ctx context.Context, loader render.Loader, target string) error {
	var body []byte
	var err error
	if target == "-" {
		body, err = render.Read(os.Stdin)
	} else {
		body, err = loader.Load(ctx, target)
	}
	if err != nil {
		return err
	}
	doc, err := dom.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(section.AllSections(doc))
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
