// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package inference

import (
	"context"

	"github.com/pdiddy/sciqa/internal/retry"
)

// Retrying wraps a Backend with a retry policy. Transient failures are
// re-attempted; exhausting the ceiling surfaces as *FatalError.
type Retrying struct {
	next   Backend
	policy retry.Policy
}

// WithRetry decorates b. The policy's Retryable predicate defaults to
// IsTransient when unset.
func WithRetry(b Backend, p retry.Policy) *Retrying {
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return &Retrying{next: b, policy: p}
}

// Name returns the wrapped backend's name.
func (r *Retrying) Name() string {
	return r.next.Name()
}

// Invoke calls the wrapped backend under the retry policy.
func (r *Retrying) Invoke(ctx context.Context, p Payload) (string, error) {
	policy := r.policy
	if policy.Logger != nil {
		policy.Logger = policy.Logger.With("backend", r.next.Name())
	}
	text, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return r.next.Invoke(ctx, p)
	})
	if err != nil {
		return "", fatalAfterRetries(r.next.Name(), err)
	}
	return text, nil
}
