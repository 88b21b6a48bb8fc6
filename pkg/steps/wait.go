package steps

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
)

// mismatch is returned by eventually checks that should be retried.
type mismatch struct{ err error }

func (m *mismatch) Error() string { return m.err.Error() }
func (m *mismatch) Unwrap() error { return m.err }

func retryable(err error) error { return &mismatch{err: err} }

// eventually runs check until it succeeds, the element timeout elapses, or
// it returns an error not wrapped with retryable. The last retryable error
// is returned on timeout.
func (w *World) eventually(ctx context.Context, check func() error) error {
	t := w.cfg.Timeouts
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.PollInitial
	b.MaxInterval = t.PollMax
	b.MaxElapsedTime = t.Element
	if b.InitialInterval <= 0 {
		b.InitialInterval = 100 * time.Millisecond
	}
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 10 * time.Second
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}

	var last error
	op := func() error {
		err := check()
		if err == nil {
			return nil
		}
		var m *mismatch
		if errors.As(err, &m) {
			last = m.err
			return err
		}
		return backoff.Permanent(err)
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	var m *mismatch
	if errors.As(err, &m) {
		return last
	}
	if last != nil && errors.Is(err, context.DeadlineExceeded) {
		return last
	}
	return err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func expectedActual(err *core.ExecutionError, expected, actual string) error {
	return err.WithDetails(map[string]interface{}{"expected": expected, "actual": actual})
}
