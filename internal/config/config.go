// Package config loads the clonepages service configuration from a YAML
// file, then applies environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/clonepages/render"
)

// Config is the top-level configuration.
type Config struct {
	Addr string `yaml:"addr"`
	// PublicOrigin is the origin the editor UI is served from. Frame
	// messages must carry it.
	PublicOrigin string `yaml:"public_origin"`
	// EditorOrigins may attach to a frame over websocket and embed cloned
	// pages. PublicOrigin is always included.
	EditorOrigins []string        `yaml:"editor_origins"`
	DB            string          `yaml:"db"`
	MaxBody       int64           `yaml:"max_body"`
	Render        RenderConfig    `yaml:"render"`
	Timeouts      TimeoutConfig   `yaml:"timeouts"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Sinks         []SinkConfig    `yaml:"sinks"`
}

// RenderConfig selects how pages are acquired.
type RenderConfig struct {
	// Mode is backend | http | browser | auto.
	Mode         string              `yaml:"mode"`
	Backend      string              `yaml:"backend"`
	Integrations render.Integrations `yaml:"integrations"`
	// AllowPrivate permits loopback and private targets.
	AllowPrivate bool          `yaml:"allow_private"`
	Browser      BrowserConfig `yaml:"browser"`
}

// BrowserConfig controls headless Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          *bool         `yaml:"stealth"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
}

// TimeoutConfig bounds page loads and editor round trips.
type TimeoutConfig struct {
	Load  time.Duration `yaml:"load"`
	Reply time.Duration `yaml:"reply"`
}

// RateLimitConfig limits session creation per client IP.
type RateLimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// SinkConfig defines an event output.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

var modes = map[string]bool{"backend": true, "http": true, "browser": true, "auto": true}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file. An empty path yields the
// defaults.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.PublicOrigin == "" {
		host := c.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		c.PublicOrigin = "http://" + host
	}
	if c.DB == "" {
		c.DB = "clonepages.db"
	}
	if c.MaxBody <= 0 {
		c.MaxBody = 1 << 20
	}
	if c.Render.Mode == "" {
		c.Render.Mode = "auto"
		if c.Render.Backend != "" {
			c.Render.Mode = "backend"
		}
	}
	if c.Render.Browser.Stealth == nil {
		on := true
		c.Render.Browser.Stealth = &on
	}
	if c.Render.Browser.NavTimeout <= 0 {
		c.Render.Browser.NavTimeout = 30 * time.Second
	}
	if c.Timeouts.Load <= 0 {
		c.Timeouts.Load = 30 * time.Second
	}
	if c.Timeouts.Reply <= 0 {
		c.Timeouts.Reply = 5 * time.Second
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = time.Minute
	}
}

// Validate reports configuration errors that defaults cannot fix.
func (c *Config) Validate() error {
	if !modes[c.Render.Mode] {
		return fmt.Errorf("config: render.mode %q: want backend, http, browser or auto", c.Render.Mode)
	}
	if c.Render.Mode == "backend" && c.Render.Backend == "" {
		return fmt.Errorf("config: render.mode backend needs render.backend")
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}

// Origins returns PublicOrigin followed by EditorOrigins.
func (c *Config) Origins() []string {
	out := []string{c.PublicOrigin}
	for _, o := range c.EditorOrigins {
		if o != c.PublicOrigin {
			out = append(out, o)
		}
	}
	return out
}

// ApplyEnv overrides fields from CLONEPAGES_* environment variables.
func (c *Config) ApplyEnv() error {
	c.Addr = env("CLONEPAGES_ADDR", c.Addr)
	c.PublicOrigin = env("CLONEPAGES_PUBLIC_ORIGIN", c.PublicOrigin)
	c.DB = env("CLONEPAGES_DB", c.DB)
	c.Render.Backend = env("CLONEPAGES_BACKEND", c.Render.Backend)
	c.Render.Mode = env("CLONEPAGES_RENDER_MODE", c.Render.Mode)
	c.Render.Browser.Remote = env("CLONEPAGES_BROWSER_REMOTE", c.Render.Browser.Remote)
	if v := env("CLONEPAGES_EDITOR_ORIGINS", ""); v != "" {
		c.EditorOrigins = strings.Split(v, ",")
	}
	if v := env("CLONEPAGES_ALLOW_PRIVATE", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: CLONEPAGES_ALLOW_PRIVATE: %w", err)
		}
		c.Render.AllowPrivate = b
	}
	return c.Validate()
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
