// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/sciqa/internal/decode"
	"github.com/pdiddy/sciqa/pkg/types"
)

// AssembleContext joins text segments into one passage with [Image N]
// markers. An empty segment, or one that begins with ")", marks the
// position of the next image while images remain.
func AssembleContext(segments []string, imageCount int) string {
	var sb strings.Builder
	next := 0
	for _, seg := range segments {
		switch {
		case seg == "" && next < imageCount:
			next++
			fmt.Fprintf(&sb, " [Image %d]", next)
		case strings.HasPrefix(seg, ")") && next < imageCount:
			next++
			fmt.Fprintf(&sb, " [Image %d]%s", next, seg)
		default:
			sb.WriteString(seg)
		}
	}
	return sb.String()
}

// classifierText is the text a record is judged on: its background, or
// the joined non-empty segments when the background is empty.
func classifierText(rec types.Record) string {
	if strings.TrimSpace(rec.Background) != "" {
		return rec.Background
	}
	parts := make([]string, 0, len(rec.TextSegments))
	for _, seg := range rec.TextSegments {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, " ")
}

// captionList renders captions as an indented JSON list of "Image N: ..."
// strings.
func captionList(images []types.ImageDescriptor) string {
	lines := make([]string, len(images))
	for i, img := range images {
		lines[i] = fmt.Sprintf("%s: %s", decode.ImageKey(img.Index), img.Caption)
	}
	data, _ := json.MarshalIndent(lines, "", "  ")
	return string(data)
}

// ParseKeywords splits a "[Category]: kw1, kw2" reply. A reply without a
// category prefix yields an empty category and the whole line as keywords.
func ParseKeywords(reply string) (category string, keywords []string) {
	line := strings.TrimSpace(decode.Extract(reply))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	body := line
	if i := strings.Index(line, ":"); i >= 0 {
		category = strings.Trim(strings.TrimSpace(line[:i]), "[]*")
		body = line[i+1:]
	}
	for _, kw := range strings.Split(body, ",") {
		kw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(kw), "."))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return strings.TrimSpace(category), keywords
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func figurePrefix(figID, label string) string {
	if figID == "" && label == "" {
		return ""
	}
	return fmt.Sprintf(":%s %s :", figID, label)
}

// ObservationText renders the per-image observations with figure prefixes,
// followed by the observation summary. Unresolved entries are skipped.
func ObservationText(rec types.Record) string {
	var parts []string
	for _, a := range rec.Annotations {
		if a.Observation != "" && a.Observation != decode.NotFound {
			parts = append(parts, fmt.Sprintf("%s [Image %d]: %s", figurePrefix(a.FigID, a.SubfigLabel), a.ImageIndex, a.Observation))
		}
	}
	if rec.Summary != nil && rec.Summary.ObservationSummary != "" {
		parts = append(parts, "[Observation Summary]: "+rec.Summary.ObservationSummary)
	}
	return strings.Join(parts, "\n")
}

// observationBrief is the plain per-image listing used for visual QA. It
// returns "" when there is nothing to show.
func observationBrief(rec types.Record) string {
	var parts []string
	for _, a := range rec.Annotations {
		if a.Observation != "" && a.Observation != decode.NotFound {
			parts = append(parts, fmt.Sprintf("[Image %d]: %s", a.ImageIndex, a.Observation))
		}
	}
	if rec.Summary != nil && rec.Summary.ObservationSummary != "" {
		parts = append(parts, "[Summary]: "+rec.Summary.ObservationSummary)
	}
	return strings.Join(parts, "\n")
}
