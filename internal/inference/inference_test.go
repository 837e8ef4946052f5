// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/sciqa/internal/retry"
	"github.com/pdiddy/sciqa/pkg/types"
)

func streamHandler(deltas ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			chunk, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": d}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func testBackend(url string) *HTTPBackend {
	return NewHTTPBackend(types.BackendConfig{
		Name:    "text",
		BaseURL: url,
		Model:   "test-model",
		APIKey:  "secret",
		Timeout: 5 * time.Second,
	}, nil)
}

func TestHTTPBackend_AccumulatesStream(t *testing.T) {
	var got chatRequest
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		streamHandler("Hello", ", ", "world")(w, r)
	}))
	defer ts.Close()

	text, err := testBackend(ts.URL).Invoke(context.Background(), Text("say hi"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "test-model", got.Model)
	assert.True(t, got.Stream)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.InDelta(t, defaultTemperature, got.Temperature, 1e-9)
	assert.Equal(t, "say hi", got.Messages[0].Content)
}

func TestHTTPBackend_ExplicitZeroTemperature(t *testing.T) {
	var got chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		streamHandler("ok")(w, r)
	}))
	defer ts.Close()

	zero := 0.0
	b := NewHTTPBackend(types.BackendConfig{BaseURL: ts.URL, Model: "m", Temperature: &zero, Timeout: 5 * time.Second}, nil)
	_, err := b.Invoke(context.Background(), Text("x"))
	require.NoError(t, err)
	assert.Zero(t, got.Temperature)
}

func TestHTTPBackend_NonStreamingReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"whole reply"}}]}`)
	}))
	defer ts.Close()

	text, err := testBackend(ts.URL).Invoke(context.Background(), Text("x"))
	require.NoError(t, err)
	assert.Equal(t, "whole reply", text)
}

func TestHTTPBackend_ImagePayload(t *testing.T) {
	var raw map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		streamHandler("ok")(w, r)
	}))
	defer ts.Close()

	_, err := testBackend(ts.URL).Invoke(context.Background(), Payload{
		Text:   "describe",
		Images: []string{"data:image/jpeg;base64,AAAA"},
	})
	require.NoError(t, err)

	msgs := raw["messages"].([]any)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[0].(map[string]any)["type"])
	assert.Equal(t, "text", parts[1].(map[string]any)["type"])
}

func TestHTTPBackend_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, "nope")
			}))
			defer ts.Close()

			_, err := testBackend(ts.URL).Invoke(context.Background(), Text("x"))
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
			if !tt.transient {
				var fe *FatalError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, tt.status, fe.StatusCode)
			}
		})
	}
}

func TestHTTPBackend_ConnectionRefusedIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := testBackend(url).Invoke(context.Background(), Text("x"))
	require.Error(t, err)
	assert.True(t, IsTransient(err), "got %v", err)
}

func TestHTTPBackend_TimeoutIsFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	b := NewHTTPBackend(types.BackendConfig{BaseURL: ts.URL, Model: "m", Timeout: 20 * time.Millisecond}, nil)
	_, err := b.Invoke(context.Background(), Text("x"))
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

// scripted replays errors then succeeds, counting invocations.
type scripted struct {
	errs  []error
	calls int32
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Invoke(context.Context, Payload) (string, error) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if i < len(s.errs) {
		return "", s.errs[i]
	}
	return "done", nil
}

func quietPolicy(delays *[]time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestWithRetry_RecoversFromTransient(t *testing.T) {
	var delays []time.Duration
	transient := &TransientError{Backend: "scripted", Err: errors.New("connection reset")}
	s := &scripted{errs: []error{transient, transient}}

	text, err := WithRetry(s, quietPolicy(&delays)).Invoke(context.Background(), Text("x"))
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, int32(3), s.calls)
	assert.Len(t, delays, 2)
}

func TestWithRetry_FatalNotRetried(t *testing.T) {
	var delays []time.Duration
	s := &scripted{errs: []error{&FatalError{Backend: "scripted", StatusCode: 400, Err: errors.New("bad")}}}

	_, err := WithRetry(s, quietPolicy(&delays)).Invoke(context.Background(), Text("x"))
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int32(1), s.calls)
	assert.Empty(t, delays)
}

func TestWithRetry_ExhaustionBecomesFatal(t *testing.T) {
	var delays []time.Duration
	transient := &TransientError{Backend: "scripted", StatusCode: 503, Err: errors.New("unavailable")}
	s := &scripted{errs: []error{transient, transient, transient}}

	_, err := WithRetry(s, quietPolicy(&delays)).Invoke(context.Background(), Text("x"))
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 503, fe.StatusCode)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(3), s.calls)
	assert.Len(t, delays, 2)
}

func TestImageDataURL(t *testing.T) {
	u, err := ImageDataURL(types.ImageSource{Base64: "QUJD"})
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", u)

	path := filepath.Join(t.TempDir(), "img.jpg")
	require.NoError(t, os.WriteFile(path, []byte("ABC"), 0o644))
	u, err = ImageDataURL(types.ImageSource{LocalPath: path})
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", u)

	_, err = ImageDataURL(types.ImageSource{})
	assert.Error(t, err)

	_, err = ImageDataURL(types.ImageSource{LocalPath: filepath.Join(t.TempDir(), "missing.jpg")})
	assert.Error(t, err)
}
