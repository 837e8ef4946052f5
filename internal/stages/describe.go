// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/sciqa/internal/decode"
	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/limiter"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// describePrefix is a label some vision models put before their reply.
const describePrefix = "[Enhanced Captions]:"

// Describe asks every vision source for a description of every image.
// Each call holds an image permit for its whole duration.
type Describe struct {
	deps Deps
}

func (*Describe) Name() string       { return "describe" }
func (*Describe) Checkpoint() string { return "step2b_vlm" }

// Apply fans out one call per (source, image). An image without pixel
// data gets the NotFound description; a backend failure fails the record.
func (d *Describe) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	out := make([]types.SourceDescriptions, len(d.deps.Vision))
	for s, b := range d.deps.Vision {
		out[s] = types.SourceDescriptions{
			Source:       b.Name(),
			Descriptions: make([]types.ImageDescription, len(rec.Images)),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for s, b := range d.deps.Vision {
		for i, img := range rec.Images {
			g.Go(func() error {
				text, err := d.describe(gctx, b, img)
				if err != nil {
					return fmt.Errorf("describing image %d with %s: %w", img.Index, b.Name(), err)
				}
				out[s].Descriptions[i] = types.ImageDescription{ImageIndex: img.Index, Description: text}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return pipeline.Failed(err)
	}

	rec.ImageDescriptions = out
	return pipeline.Transformed(rec)
}

func (d *Describe) describe(ctx context.Context, b inference.Backend, img types.ImageDescriptor) (string, error) {
	if img.ImageSource.IsEmpty() {
		d.deps.logger().Debug("image has no pixel source", "image", img.Index)
		return decode.NotFound, nil
	}
	url, err := inference.ImageDataURL(img.ImageSource)
	if err != nil {
		d.deps.logger().Debug("image unreadable", "image", img.Index, "error", err)
		return decode.NotFound, nil
	}
	prompt, err := render(describePromptTmpl, struct{ Caption string }{img.Caption})
	if err != nil {
		return "", err
	}

	reply, err := limiter.Do(ctx, d.deps.Images, func(ctx context.Context) (string, error) {
		return b.Invoke(ctx, inference.Payload{Text: prompt, Images: []string{url}})
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ReplaceAll(reply, describePrefix, "")), nil
}
