// Package render acquires the HTML of a page to clone. A Loader turns a
// URL into markup; implementations call the rendering backend, fetch
// directly, or drive a headless browser.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/clonepages/horosafe"
	"github.com/hazyhaar/clonepages/render/internal/browser"
	"github.com/hazyhaar/clonepages/render/internal/fetcher"
)

// MaxDocument caps the size of a loaded document.
const MaxDocument = fetcher.MaxBody

// ErrLoad wraps every acquisition failure.
var ErrLoad = errors.New("render: load failed")

// Loader returns the HTML of a page.
type Loader interface {
	Load(ctx context.Context, pageURL string) ([]byte, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, pageURL string) ([]byte, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, pageURL string) ([]byte, error) { return f(ctx, pageURL) }

// Integrations are the marketing snippets the backend injects into the
// cloned page. Empty ids are omitted from the query.
type Integrations struct {
	FacebookPixel    string `yaml:"facebook_pixel" json:"facebook_pixel,omitempty"`
	GoogleAnalytics  string `yaml:"google_analytics" json:"google_analytics,omitempty"`
	GoogleTagManager string `yaml:"google_tag_manager" json:"google_tag_manager,omitempty"`
	TikTokPixel      string `yaml:"tiktok_pixel" json:"tiktok_pixel,omitempty"`
	HotjarID         string `yaml:"hotjar_id" json:"hotjar_id,omitempty"`
	ChatWidget       string `yaml:"chat_widget" json:"chat_widget,omitempty"`
	// Original asks the backend for the untouched page.
	Original bool `yaml:"original" json:"original,omitempty"`
}

// Query builds the backend query string for target.
func (in Integrations) Query(target string) string {
	v := url.Values{}
	v.Set("url", target)
	if in.Original {
		v.Set("original", "true")
	}
	set := func(k, val string) {
		if val = strings.TrimSpace(val); val != "" {
			v.Set(k, val)
		}
	}
	set("fbPixel", in.FacebookPixel)
	set("ga", in.GoogleAnalytics)
	set("gtm", in.GoogleTagManager)
	set("tiktokPixel", in.TikTokPixel)
	set("hotjar", in.HotjarID)
	set("chat", in.ChatWidget)
	return v.Encode()
}

// Backend loads pages through the rendering backend HTTP API:
// GET <Endpoint>?<Integrations.Query(url)>.
type Backend struct {
	Endpoint     string
	Integrations Integrations
	Client       *http.Client
}

// Load implements Loader.
func (b *Backend) Load(ctx context.Context, pageURL string) ([]byte, error) {
	client := b.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	sep := "?"
	if strings.Contains(b.Endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.Endpoint+sep+b.Integrations.Query(pageURL), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: backend request: %v", ErrLoad, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: backend: %v", ErrLoad, err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, MaxDocument)
	if err != nil {
		return nil, fmt.Errorf("%w: backend body: %v", ErrLoad, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: backend status %d: %s", ErrLoad, resp.StatusCode, firstLine(body))
	}
	return body, nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// HTTP loads pages with a plain GET.
type HTTP struct {
	f *fetcher.Fetcher
}

// NewHTTP creates an HTTP loader. A nil client uses a 30s timeout.
func NewHTTP(client *http.Client, logger *slog.Logger) *HTTP {
	opts := []fetcher.Option{}
	if client != nil {
		opts = append(opts, fetcher.WithClient(client))
	}
	if logger != nil {
		opts = append(opts, fetcher.WithLogger(logger))
	}
	return &HTTP{f: fetcher.New(opts...)}
}

// Load implements Loader.
func (h *HTTP) Load(ctx context.Context, pageURL string) ([]byte, error) {
	res, err := h.f.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return res.HTML, nil
}

// Sufficient reports whether body needs no browser render.
func Sufficient(body []byte) bool { return fetcher.IsSufficient(body) }

// Auto fetches over HTTP and escalates to Browser when the result looks
// like a script-rendered shell. A nil Browser disables escalation.
type Auto struct {
	HTTP    Loader
	Browser Loader
	Logger  *slog.Logger
}

// Load implements Loader.
func (a *Auto) Load(ctx context.Context, pageURL string) ([]byte, error) {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}
	body, err := a.HTTP.Load(ctx, pageURL)
	if err == nil && (a.Browser == nil || Sufficient(body)) {
		return body, nil
	}
	if a.Browser == nil {
		return nil, err
	}
	log.Info("render: escalating to browser", "url", pageURL, "http_error", err)
	return a.Browser.Load(ctx, pageURL)
}

// Guard validates URLs before delegating to next: http(s) only, and no
// private or loopback targets unless allowPrivate is set.
func Guard(next Loader, allowPrivate bool) Loader {
	return LoaderFunc(func(ctx context.Context, pageURL string) ([]byte, error) {
		if err := CheckURL(pageURL, allowPrivate); err != nil {
			return nil, err
		}
		return next.Load(ctx, pageURL)
	})
}

// CheckURL applies the Guard rules to one URL.
func CheckURL(pageURL string, allowPrivate bool) error {
	if allowPrivate {
		u, err := url.Parse(pageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %w", ErrLoad, horosafe.ErrUnsafeScheme)
		}
		return nil
	}
	if err := horosafe.ValidateURL(pageURL); err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return nil
}

// Static serves fixed documents by URL, for tests and offline use.
type Static map[string]string

// Load implements Loader.
func (s Static) Load(_ context.Context, pageURL string) ([]byte, error) {
	doc, ok := s[pageURL]
	if !ok {
		return nil, fmt.Errorf("%w: %s: not found", ErrLoad, pageURL)
	}
	return []byte(doc), nil
}

// Browser renders pages in headless Chrome.
type Browser struct {
	m *browser.Manager
}

// BrowserConfig configures NewBrowser.
type BrowserConfig struct {
	RemoteURL        string
	ResourceBlocking []string
	Stealth          bool
	NavTimeout       time.Duration
	Logger           *slog.Logger
}

// NewBrowser creates a Browser. Chrome is started on first use.
func NewBrowser(cfg BrowserConfig) *Browser {
	return &Browser{m: browser.NewManager(browser.Config{
		RemoteURL:        cfg.RemoteURL,
		ResourceBlocking: cfg.ResourceBlocking,
		Stealth:          cfg.Stealth,
		NavTimeout:       cfg.NavTimeout,
		Logger:           cfg.Logger,
	})}
}

// Load implements Loader.
func (b *Browser) Load(ctx context.Context, pageURL string) ([]byte, error) {
	body, err := b.m.Render(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return body, nil
}

// Close stops Chrome.
func (b *Browser) Close() error { return b.m.Close() }

// Measure renders document and returns the box of the element at xpath.
func (b *Browser) Measure(ctx context.Context, document, xpath string) (top, left, width, height float64, err error) {
	box, err := b.m.Measure(ctx, document, xpath)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return box.Top, box.Left, box.Width, box.Height, nil
}

// Read is LimitedReadAll with the document cap, for callers that receive
// HTML from elsewhere.
func Read(r io.Reader) ([]byte, error) {
	return horosafe.LimitedReadAll(r, MaxDocument)
}
