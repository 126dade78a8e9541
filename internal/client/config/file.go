package config

import (
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/filex"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/flagx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/timex"
)

// FileConfig is a DTO used exclusively for config file decoding. It relies
// on timex.Duration so intervals may be strings like "2s" or integer
// nanoseconds. Only non-zero values override Config.
type FileConfig struct {
	ServerURL      string         `json:"server_url" yaml:"server_url"`
	RelayURL       string         `json:"relay_url" yaml:"relay_url"`
	PollInterval   timex.Duration `json:"poll_interval" yaml:"poll_interval"`
	IntentRetries  int            `json:"intent_retries" yaml:"intent_retries"`
	UploadRetries  int            `json:"upload_retries" yaml:"upload_retries"`
	Parallelism    int            `json:"parallelism" yaml:"parallelism"`
	FrameInterval  timex.Duration `json:"frame_interval" yaml:"frame_interval"`
	RequestTimeout timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	LogFormat      string         `json:"log_format" yaml:"log_format"`
	LogLevel       string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays Config with values from the file given by -c/-config.
// Panics on read or decode errors.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	var fc FileConfig
	if err := filex.DecodeConfig(path, &fc); err != nil {
		panic(err)
	}
	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	if fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if fc.RelayURL != "" {
		cfg.RelayURL = fc.RelayURL
	}
	if fc.PollInterval.Duration != 0 {
		cfg.PollInterval = fc.PollInterval.Duration
	}
	if fc.IntentRetries != 0 {
		cfg.IntentRetries = fc.IntentRetries
	}
	if fc.UploadRetries != 0 {
		cfg.UploadRetries = fc.UploadRetries
	}
	if fc.Parallelism != 0 {
		cfg.Parallelism = fc.Parallelism
	}
	if fc.FrameInterval.Duration != 0 {
		cfg.FrameInterval = fc.FrameInterval.Duration
	}
	if fc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
}
