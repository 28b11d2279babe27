package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/andrewoneill45-ctrl/school-profile/pkg/errors"
)

// WithTimeout runs fn with a context cancelled after timeout. A deadline hit
// is reported as apperrors.ErrTimeout; a cancelled parent is reported as the
// parent's error. fn keeps running in the background after a timeout and must
// honour its context.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w after %v", name, apperrors.ErrTimeout, timeout)
	}
}
