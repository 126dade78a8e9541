package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseEnv(t *testing.T) {
	t.Run("overrides typed fields", func(t *testing.T) {
		t.Setenv("EFIND_HTTP_ADDR", ":6060")
		t.Setenv("EFIND_SESSION_TTL", "20m")
		t.Setenv("EFIND_IMAGE_HASH_THRESHOLD", "3")
		t.Setenv("EFIND_TEXT_SIMILARITY_THRESHOLD", "0.8")
		t.Setenv("EFIND_STORAGE_BACKEND", "s3")

		cfg := &Config{}
		cfg.LoadDefaults()
		parseEnv(cfg)

		assert.Equal(t, ":6060", cfg.HTTPAddr)
		assert.Equal(t, 20*time.Minute, cfg.SessionTTL)
		assert.Equal(t, 3, cfg.ImageHashThreshold)
		assert.InDelta(t, 0.8, cfg.TextSimilarityThreshold, 1e-9)
		assert.Equal(t, StorageS3, cfg.StorageBackend)
	})

	t.Run("empty values are ignored", func(t *testing.T) {
		t.Setenv("EFIND_HTTP_ADDR", "")

		cfg := &Config{HTTPAddr: ":1"}
		parseEnv(cfg)
		assert.Equal(t, ":1", cfg.HTTPAddr)
	})

	t.Run("malformed duration panics", func(t *testing.T) {
		t.Setenv("EFIND_PRESIGN_TTL", "soon")
		require.Panics(t, func() { parseEnv(&Config{}) })
	})

	t.Run("dotenv file is loaded", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EFIND_OCR_ENDPOINT=http://ocr.local\n"), 0o600))
		t.Chdir(dir)
		t.Cleanup(func() { os.Unsetenv("EFIND_OCR_ENDPOINT") })

		cfg := &Config{}
		parseEnv(cfg)
		assert.Equal(t, "http://ocr.local", cfg.OCREndpoint)
	})
}
