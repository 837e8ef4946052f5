// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads inference API keys from a directory of plain-text
// files. Each file is one secret: the filename is the key name and the
// trimmed contents are the value.
//
// Key files: text-api-key for the text backend, <source>-api-key for a
// named vision backend, and vision-api-key as the fallback for every
// vision backend.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/sciqa/pkg/types"
)

// Key names.
const (
	TextKey   = "text-api-key"
	VisionKey = "vision-api-key"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// ApplyKeys fills every backend whose APIKey is empty. Keys set in the
// configuration are never overwritten.
func ApplyKeys(cfg *types.PipelineConfig, secrets map[string]string) {
	if cfg.TextBackend.APIKey == "" {
		cfg.TextBackend.APIKey = secrets[TextKey]
	}
	for i := range cfg.VisionBackends {
		b := &cfg.VisionBackends[i]
		if b.APIKey != "" {
			continue
		}
		if v, ok := secrets[b.Name+"-api-key"]; ok && b.Name != "" {
			b.APIKey = v
			continue
		}
		b.APIKey = secrets[VisionKey]
	}
}
