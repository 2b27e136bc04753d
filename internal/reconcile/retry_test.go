package reconcile

import (
	"errors"
	"net"
	"testing"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

var _ net.Error = fakeTimeoutErr{}

func TestIsTransient(t *testing.T) {
	gr := schema.GroupResource{Resource: "configmaps"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"too many requests", apierrors.NewTooManyRequests("rate limited", 0), true},
		{"service unavailable", apierrors.NewServiceUnavailable("down"), true},
		{"server timeout", apierrors.NewServerTimeout(gr, "apply", 0), true},
		{"internal error", apierrors.NewInternalError(errors.New("boom")), true},
		{"network timeout", fakeTimeoutErr{}, true},
		{"not found is permanent", apierrors.NewNotFound(gr, "cm1"), false},
		{"forbidden is permanent", apierrors.NewForbidden(gr, "cm1", errors.New("denied")), false},
		{"plain error is permanent", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isTransient(tt.err)
			if got != tt.want {
				t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPermanent_WrapsNonNilErrOnly(t *testing.T) {
	if permanent(nil) != nil {
		t.Error("permanent(nil) should be nil")
	}

	err := errors.New("boom")
	wrapped := permanent(err)
	if wrapped == nil {
		t.Fatal("permanent(err) should not be nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("permanent(err) should still wrap the original error")
	}
}

func TestRetryPolicy_MatchesSpecNumbers(t *testing.T) {
	b := retryPolicy()
	if b.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s", b.InitialInterval)
	}
	if b.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", b.Multiplier)
	}
	if b.MaxInterval != 60*time.Second {
		t.Errorf("MaxInterval = %v, want 60s", b.MaxInterval)
	}
}
