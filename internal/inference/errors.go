// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/pdiddy/sciqa/internal/retry"
)

// TransientError is a connection or availability failure that is worth
// retrying.
type TransientError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient backend error (status %d): %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient backend error: %v", e.Backend, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is any backend failure that must not be retried, including
// a transient failure that exhausted its retries.
type FatalError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend error (status %d): %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: backend error: %v", e.Backend, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried. A FatalError anywhere
// in the chain wins over a wrapped TransientError.
func IsTransient(err error) bool {
	var fe *FatalError
	if errors.As(err, &fe) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}

// classifyStatus maps a non-200 HTTP status to an error class. Server-side
// failures and rate limiting mean the backend is temporarily unavailable.
func classifyStatus(backend string, status int, body string) error {
	err := fmt.Errorf("%s", body)
	if status == http.StatusTooManyRequests || status >= 500 {
		return &TransientError{Backend: backend, StatusCode: status, Err: err}
	}
	return &FatalError{Backend: backend, StatusCode: status, Err: err}
}

// classifyTransport maps a transport-level error. Timeouts are fatal:
// the call already consumed its whole budget.
func classifyTransport(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &FatalError{Backend: backend, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FatalError{Backend: backend, Err: err}
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return &TransientError{Backend: backend, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &TransientError{Backend: backend, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsTemporary {
		return &TransientError{Backend: backend, Err: err}
	}
	return &FatalError{Backend: backend, Err: err}
}

// fatalAfterRetries converts an exhausted retry into a FatalError so the
// caller sees a single, non-retryable failure.
func fatalAfterRetries(backend string, err error) error {
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		return err
	}
	fe := &FatalError{Backend: backend, Err: err}
	var te *TransientError
	if errors.As(err, &te) {
		fe.StatusCode = te.StatusCode
	}
	return fe
}
