package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by the server.
const EnvPrefix = "EFIND_"

// parseEnv overlays EFIND_* environment variables. A .env file in the working
// directory is loaded first when present; real environment variables win over it.
// Malformed numeric or duration values panic, like malformed config files.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	envString(&config.HTTPAddr, "HTTP_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.SecretKey, "SECRET_KEY")
	envDuration(&config.SessionTTL, "SESSION_TTL")
	envDuration(&config.SessionGrace, "SESSION_GRACE")
	envDuration(&config.PresignTTL, "PRESIGN_TTL")
	envDuration(&config.SweepInterval, "SWEEP_INTERVAL")
	envString(&config.StorageBackend, "STORAGE_BACKEND")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	envString(&config.S3PublicBaseURL, "S3_PUBLIC_BASE_URL")
	envString(&config.LocalStorageDir, "LOCAL_STORAGE_DIR")
	envString(&config.PublicBaseURL, "PUBLIC_BASE_URL")
	envInt(&config.ImageHashThreshold, "IMAGE_HASH_THRESHOLD")
	envFloat(&config.TextSimilarityThreshold, "TEXT_SIMILARITY_THRESHOLD")
	envString(&config.DeferMode, "DEFER_MODE")
	envString(&config.OCREndpoint, "OCR_ENDPOINT")
	envString(&config.LogFormat, "LOG_FORMAT")
	envString(&config.LogLevel, "LOG_LEVEL")
	envInt(&config.MaxFrameBytes, "MAX_FRAME_BYTES")
	envFloat(&config.RelayPublishRate, "RELAY_PUBLISH_RATE")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		*dst = v
	}
}

func envDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func envInt(dst *int, key string) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
}

func envFloat(dst *float64, key string) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		panic(err)
	}
	*dst = f
}
