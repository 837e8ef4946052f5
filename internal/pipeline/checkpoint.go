// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/sciqa/pkg/types"
)

// ErrCorpusMissing is returned when the source corpus file does not exist.
var ErrCorpusMissing = errors.New("source corpus not found")

func extension(f types.CheckpointFormat) string {
	if f == types.FormatYAML {
		return "yaml"
	}
	return "json"
}

func formatForPath(path string) types.CheckpointFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return types.FormatYAML
	}
	return types.FormatJSON
}

// WriteCheckpoint serializes v to path. The file is written to a
// temporary sibling and renamed into place, so a checkpoint is always a
// complete snapshot.
func WriteCheckpoint(path string, format types.CheckpointFormat, v any) error {
	var (
		data []byte
		err  error
	)
	if format == types.FormatYAML {
		data, err = yaml.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming checkpoint: %w", err)
	}
	return nil
}

// LoadGeneration reads a checkpoint written by WriteCheckpoint. The
// format follows the file extension.
func LoadGeneration(path string) ([]types.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	var gen []types.Record
	if formatForPath(path) == types.FormatYAML {
		err = yaml.Unmarshal(data, &gen)
	} else {
		err = json.Unmarshal(data, &gen)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s: %w", path, err)
	}
	return gen, nil
}

// LoadCorpus reads the source corpus, a JSON list of records. A missing
// file returns ErrCorpusMissing; image indices are normalized to 1-based.
func LoadCorpus(path string) ([]types.Record, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCorpusMissing, path)
		}
		return nil, fmt.Errorf("stat corpus %s: %w", path, err)
	}
	gen, err := LoadGeneration(path)
	if err != nil {
		return nil, err
	}
	for i := range gen {
		gen[i].NormalizeImageIndices()
	}
	return gen, nil
}
