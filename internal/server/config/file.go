package config

import (
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/filex"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/flagx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/timex"
)

// FileConfig is the on-disk shape of the server configuration. Durations use
// timex.Duration so both "10m" and integer nanoseconds are accepted.
//
// Only non-zero fields override the values already present in Config.
type FileConfig struct {
	HTTPAddr                string         `json:"http_addr" yaml:"http_addr"`
	DatabaseDSN             string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey               string         `json:"secret_key" yaml:"secret_key"`
	SessionTTL              timex.Duration `json:"session_ttl" yaml:"session_ttl"`
	SessionGrace            timex.Duration `json:"session_grace" yaml:"session_grace"`
	PresignTTL              timex.Duration `json:"presign_ttl" yaml:"presign_ttl"`
	SweepInterval           timex.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	StorageBackend          string         `json:"storage_backend" yaml:"storage_backend"`
	S3RootUser              string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword          string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint          string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3PublicBaseURL         string         `json:"s3_public_base_url" yaml:"s3_public_base_url"`
	LocalStorageDir         string         `json:"local_storage_dir" yaml:"local_storage_dir"`
	PublicBaseURL           string         `json:"public_base_url" yaml:"public_base_url"`
	ImageHashThreshold      int            `json:"image_hash_threshold" yaml:"image_hash_threshold"`
	TextSimilarityThreshold float64        `json:"text_similarity_threshold" yaml:"text_similarity_threshold"`
	DeferMode               string         `json:"defer_mode" yaml:"defer_mode"`
	OCREndpoint             string         `json:"ocr_endpoint" yaml:"ocr_endpoint"`
	LogFormat               string         `json:"log_format" yaml:"log_format"`
	LogLevel                string         `json:"log_level" yaml:"log_level"`
	MaxFrameBytes           int            `json:"max_frame_bytes" yaml:"max_frame_bytes"`
	RelayPublishRate        float64        `json:"relay_publish_rate" yaml:"relay_publish_rate"`
}

// parseFile loads configuration values from the file named by -c/-config.
// If no file is given nothing happens; an unreadable or malformed file panics.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	c := &FileConfig{}
	if err := filex.DecodeConfig(path, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.SessionTTL, c.SessionTTL)
	setDuration(&config.SessionGrace, c.SessionGrace)
	setDuration(&config.PresignTTL, c.PresignTTL)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicBaseURL, c.S3PublicBaseURL)
	setString(&config.LocalStorageDir, c.LocalStorageDir)
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	if c.ImageHashThreshold != 0 {
		config.ImageHashThreshold = c.ImageHashThreshold
	}
	if c.TextSimilarityThreshold != 0 {
		config.TextSimilarityThreshold = c.TextSimilarityThreshold
	}
	setString(&config.DeferMode, c.DeferMode)
	setString(&config.OCREndpoint, c.OCREndpoint)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)
	if c.MaxFrameBytes != 0 {
		config.MaxFrameBytes = c.MaxFrameBytes
	}
	if c.RelayPublishRate != 0 {
		config.RelayPublishRate = c.RelayPublishRate
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
