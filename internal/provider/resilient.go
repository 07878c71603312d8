package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds every external call.
type RetryPolicy struct {
	Timeout     time.Duration // per attempt; zero disables
	MaxAttempts int
	Backoff     time.Duration // multiplied by the attempt number
}

// DefaultRetryPolicy is 60s per call, 3 attempts, 2s linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Timeout: 60 * time.Second, MaxAttempts: 3, Backoff: 2 * time.Second}
}

// Resilient decorates a Provider with per-call timeouts and bounded retry.
// ErrUnsupported and caller cancellation are never retried.
type Resilient struct {
	inner  Provider
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewResilient(inner Provider, policy RetryPolicy) *Resilient {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Resilient{inner: inner, policy: policy, sleep: sleepCtx}
}

func (r *Resilient) Name() string {
	return r.inner.Name()
}

// Unwrap returns the decorated provider.
func (r *Resilient) Unwrap() Provider {
	return r.inner
}

func (r *Resilient) Describe(ctx context.Context, prompt string, image Image) (string, error) {
	var out string
	err := r.do(ctx, "describe", func(ctx context.Context) error {
		var err error
		out, err = r.inner.Describe(ctx, prompt, image)
		return err
	})
	return out, err
}

func (r *Resilient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.do(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = r.inner.Embed(ctx, texts)
		return err
	})
	return out, err
}

func (r *Resilient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	var out *Response
	err := r.do(ctx, "chat", func(ctx context.Context) error {
		var err error
		out, err = r.inner.Chat(ctx, messages, opts)
		return err
	})
	return out, err
}

func (r *Resilient) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.policy.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		}
		lastErr = fn(callCtx)
		cancel()

		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrUnsupported) || ctx.Err() != nil {
			return lastErr
		}
		if attempt == r.policy.MaxAttempts {
			break
		}
		if err := r.sleep(ctx, r.policy.Backoff*time.Duration(attempt)); err != nil {
			return lastErr
		}
	}
	return fmt.Errorf("%s %s: giving up after %d attempts: %w", r.inner.Name(), op, r.policy.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
