package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, 2*time.Second, c.PollInterval)
	assert.Equal(t, 3, c.IntentRetries)
	assert.Equal(t, 1, c.UploadRetries)
	assert.Equal(t, 3, c.Parallelism)
	assert.Equal(t, time.Second, c.FrameInterval)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
}

func TestRelayEndpoint(t *testing.T) {
	tests := []struct {
		server, relay, want string
	}{
		{"http://127.0.0.1:8080", "", "ws://127.0.0.1:8080/relay"},
		{"https://efind.example/api/", "", "wss://efind.example/api/relay"},
		{"http://x", "ws://relay.example/ws", "ws://relay.example/ws"},
	}
	for _, tt := range tests {
		c := Config{ServerURL: tt.server, RelayURL: tt.relay}
		assert.Equal(t, tt.want, c.RelayEndpoint())
	}
}
