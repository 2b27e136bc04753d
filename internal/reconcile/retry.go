package reconcile

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// retryPolicy realizes spec §4.4's exact retry numbers: initial interval
// 1s, multiplier 2.0, max interval 60s, max total elapsed 5m.
func retryPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2.0
	b.MaxInterval = 60 * time.Second
	return b
}

// retry runs op, retrying on transient Kubernetes API errors (429, 500,
// 503, 504, network timeouts) with the exponential backoff spec §4.4
// names. Non-retryable errors fail immediately.
func retry[T any](ctx context.Context, op backoff.Operation[T]) (T, error) {
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(retryPolicy()),
		backoff.WithMaxElapsedTime(5*time.Minute),
	)
}

// isTransient reports whether err is one of the transient conditions spec
// §4.4 names as retryable: HTTP 429/500/503/504 from the API server, or a
// network-level timeout.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsTooManyRequests(err) || apierrors.IsServerTimeout(err) ||
		apierrors.IsServiceUnavailable(err) || apierrors.IsInternalError(err) ||
		apierrors.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// permanent wraps a non-retryable error so backoff.Retry stops immediately
// instead of exhausting the retry budget on an error that will never
// resolve itself.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
