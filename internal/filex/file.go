// Package filex holds small filesystem helpers: directory bootstrap for the
// local object store and config file decoding.
package filex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnsureDir resolves dir against the working directory when relative and
// creates it (and parents) if missing. Returns the absolute path.
func EnsureDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		dir = filepath.Join(cwd, dir)
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// DecodeConfig reads path and unmarshals it into v. Files ending in .yaml or
// .yml are parsed as YAML; anything else as JSON with comments and trailing
// commas allowed.
func DecodeConfig(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, v); err != nil {
			return fmt.Errorf("parse yaml %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(b), v); err != nil {
			return fmt.Errorf("parse json %s: %w", path, err)
		}
	}
	return nil
}
