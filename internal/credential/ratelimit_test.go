package credential

import "testing"

func TestRateLimiter_NilClientAlwaysAllows(t *testing.T) {
	rl := NewRateLimiter(nil, 5, 0)

	result, err := rl.Check(t.Context(), "203.0.113.1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !result.Allowed {
		t.Error("Check() with a nil redis client should always allow")
	}

	if err := rl.Record(t.Context(), "203.0.113.1"); err != nil {
		t.Errorf("Record() error = %v, want nil no-op", err)
	}
	if err := rl.Reset(t.Context(), "203.0.113.1"); err != nil {
		t.Errorf("Reset() error = %v, want nil no-op", err)
	}
}

func TestRateLimiter_NilReceiverAlwaysAllows(t *testing.T) {
	var rl *RateLimiter

	result, err := rl.Check(t.Context(), "203.0.113.1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !result.Allowed {
		t.Error("Check() on a nil *RateLimiter should always allow")
	}
	if err := rl.Record(t.Context(), "203.0.113.1"); err != nil {
		t.Errorf("Record() error = %v, want nil no-op", err)
	}
	if err := rl.Reset(t.Context(), "203.0.113.1"); err != nil {
		t.Errorf("Reset() error = %v, want nil no-op", err)
	}
}
