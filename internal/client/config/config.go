package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// Config holds runtime settings for the capture and desktop clients.
//
// Fields:
//   - ServerURL: base URL of the capture server.
//   - RelayURL: websocket URL of the relay; derived from ServerURL when empty.
//   - PollInterval: how often the desktop polls session status.
//   - IntentRetries: additional presign/confirm attempts after a transient failure.
//   - UploadRetries: additional PUT attempts after a transient failure.
//   - Parallelism: files uploaded at once.
//   - FrameInterval: minimum spacing of camera preview frames.
//   - RequestTimeout: per-request HTTP timeout.
type Config struct {
	ServerURL      string
	RelayURL       string
	PollInterval   time.Duration
	IntentRetries  int
	UploadRetries  int
	Parallelism    int
	FrameInterval  time.Duration
	RequestTimeout time.Duration
	LogFormat      string
	LogLevel       string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.RelayURL = ""
	c.PollInterval = 2 * time.Second
	c.IntentRetries = 3
	c.UploadRetries = 1
	c.Parallelism = 3
	c.FrameInterval = time.Second
	c.RequestTimeout = 30 * time.Second
	c.LogFormat = "text"
	c.LogLevel = "info"
}

// RelayEndpoint returns RelayURL, or the relay path on ServerURL with the
// scheme switched to ws/wss.
func (c *Config) RelayEndpoint() string {
	if c.RelayURL != "" {
		return c.RelayURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + protocol.PathRelay
	return u.String()
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
