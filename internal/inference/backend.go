// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package inference talks to remote text and vision model backends.
// A Backend turns a prompt payload into reply text; failures are
// classified as transient or fatal so callers can decide whether to retry.
package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/pdiddy/sciqa/pkg/types"
)

// Payload is one prompt: text plus an optional ordered list of image
// references (URLs or data URLs).
type Payload struct {
	Text   string
	Images []string
}

// HasImages reports whether the payload transmits image data.
func (p Payload) HasImages() bool {
	return len(p.Images) > 0
}

// Text builds a text-only payload.
func Text(prompt string) Payload {
	return Payload{Text: prompt}
}

// Backend abstracts one model capability so stages and tests can swap
// implementations.
type Backend interface {
	// Name identifies the backend in logs and per-source output.
	Name() string

	// Invoke sends the payload and returns the complete reply text.
	Invoke(ctx context.Context, p Payload) (string, error)
}

// BackendFunc adapts a function into a Backend.
type BackendFunc struct {
	Label string
	Fn    func(ctx context.Context, p Payload) (string, error)
}

func (f BackendFunc) Name() string { return f.Label }

func (f BackendFunc) Invoke(ctx context.Context, p Payload) (string, error) {
	return f.Fn(ctx, p)
}

// ImageDataURL returns a data URL for the image's pixels, reading the
// local file when no inline base64 is present.
func ImageDataURL(src types.ImageSource) (string, error) {
	if src.Base64 != "" {
		return "data:image/jpeg;base64," + src.Base64, nil
	}
	if src.LocalPath == "" {
		return "", fmt.Errorf("image has no pixel source")
	}
	data, err := os.ReadFile(src.LocalPath)
	if err != nil {
		return "", fmt.Errorf("reading image %s: %w", src.LocalPath, err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
