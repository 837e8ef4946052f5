// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package decode recovers structured values from free-form model text.
// Model replies often wrap JSON in a fenced block or surround it with
// prose; decoding failures are returned as values, never raised.
package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// NotFound fills per-image lookups whose key is absent from the reply.
const NotFound = "Not found"

// ErrMalformed marks text that could not be parsed as the expected shape.
var ErrMalformed = errors.New("malformed structured output")

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:[A-Za-z]+)?(.*?)```")
	fenceTagRe    = regexp.MustCompile(`^[A-Za-z]+\s`)
)

// Extract returns the structured payload of text. A reply that begins
// with a fence marker and ends with one is unwrapped; otherwise the
// interior of the first fenced block is used; otherwise the trimmed text
// is returned unchanged.
func Extract(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
		if tag := fenceTagRe.FindString(inner); tag != "" {
			inner = inner[len(tag):]
		} else {
			inner = strings.TrimPrefix(inner, "json")
			inner = strings.TrimPrefix(inner, "JSON")
		}
		if !strings.Contains(inner, "```") {
			return strings.TrimSpace(inner)
		}
	}
	if strings.Contains(s, "```") {
		if m := fencedBlockRe.FindStringSubmatch(s); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return s
}

// Result is the outcome of a decode: either a parsed value or the reason
// the text was malformed.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the text parsed.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Get returns the parsed value and whether parsing succeeded.
func (r Result[T]) Get() (T, bool) {
	return r.Value, r.Err == nil
}

// JSON extracts the payload of text and unmarshals it into T.
func JSON[T any](text string) Result[T] {
	var v T
	payload := Extract(text)
	if payload == "" {
		return Result[T]{Err: fmt.Errorf("%w: empty reply", ErrMalformed)}
	}
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		var zero T
		return Result[T]{Value: zero, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return Result[T]{Value: v}
}

// Lookup returns m[key], or NotFound when the key is absent or blank.
func Lookup(m map[string]string, key string) string {
	if v, ok := m[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return NotFound
}

// ImageKey is the per-image key models are asked to use ("Image 3").
func ImageKey(idx int) string {
	return fmt.Sprintf("Image %d", idx)
}

// Tagged returns the interior of the first <tag>...</tag> block in text.
func Tagged(text, tag string) (string, bool) {
	open, closing := "<"+tag+">", "</"+tag+">"
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, closing)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
