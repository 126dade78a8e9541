package config

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Validate reports settings that would make the server misbehave at runtime.
func (c *Config) Validate() error {
	var err error

	if c.SessionTTL <= 0 {
		err = multierr.Append(err, errors.New("session ttl must be positive"))
	}
	if c.PresignTTL <= 0 {
		err = multierr.Append(err, errors.New("presign ttl must be positive"))
	}
	if c.SweepInterval <= 0 {
		err = multierr.Append(err, errors.New("sweep interval must be positive"))
	}
	switch c.StorageBackend {
	case StorageS3, StorageLocal:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}
	switch c.DeferMode {
	case DeferStage, DeferDraft:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown defer mode %q", c.DeferMode))
	}
	if c.ImageHashThreshold < 0 || c.ImageHashThreshold > 64 {
		err = multierr.Append(err, fmt.Errorf("image hash threshold %d out of range 0..64", c.ImageHashThreshold))
	}
	if c.TextSimilarityThreshold <= 0 || c.TextSimilarityThreshold > 1 {
		err = multierr.Append(err, fmt.Errorf("text similarity threshold %v out of range (0,1]", c.TextSimilarityThreshold))
	}
	if c.MaxFrameBytes <= 0 {
		err = multierr.Append(err, errors.New("max frame bytes must be positive"))
	}
	if c.StorageBackend == StorageLocal && c.SecretKey == "" {
		err = multierr.Append(err, errors.New("local storage requires a secret key"))
	}

	return err
}
