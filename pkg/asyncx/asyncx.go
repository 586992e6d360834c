// Package asyncx holds the small set of goroutine helpers used for work that
// must outlive a request: detached side effects and retried outbound calls.
package asyncx

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/logx"
)

// ─── Detached work ───────────────────────────────────────────────────────────

// Detach runs fn in a goroutine with a context that keeps ctx's values but
// not its cancellation, bounded by timeout. Panics are recovered and logged.
func Detach(ctx context.Context, name string, timeout time.Duration, fn func(context.Context)) {
	base := context.WithoutCancel(ctx)
	go func() {
		runCtx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logx.WithFields(logx.Fields{
					"task":  name,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("detached task panicked")
			}
		}()
		fn(runCtx)
	}()
}

// ─── Retry ────────────────────────────────────────────────────────────────────

// RetryWithBackoff calls fn up to attempts times with exponential backoff
// starting at initialDelay. The delay doubles after each failed attempt.
// Respects context cancellation between retries.
func RetryWithBackoff[T any](
	ctx context.Context,
	attempts int,
	initialDelay time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	var (
		zero  T
		err   error
		val   T
		delay = initialDelay
	)
	if attempts < 1 {
		attempts = 1
	}
	for i := range attempts {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return zero, err
}

// ─── Timeout ──────────────────────────────────────────────────────────────────

// WithTimeout runs fn with a deadline of d.
// Returns context.DeadlineExceeded if fn does not finish in time.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type res struct {
		v   T
		err error
	}

	ch := make(chan res, 1)
	go func() {
		v, err := fn(ctx)
		ch <- res{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
