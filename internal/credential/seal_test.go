package credential

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

func TestSealer_RoundTrip(t *testing.T) {
	key := newTestKey(t)
	sealer, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	urls := []string{
		"https://hooks.example.com/abc",
		"",
		"https://example.com/?token=abc&retry=1",
	}

	for _, url := range urls {
		blob, err := sealer.Seal(url)
		if err != nil {
			t.Fatalf("Seal(%q) error = %v", url, err)
		}
		got, err := sealer.Open(blob)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if got != url {
			t.Errorf("round trip = %q, want %q", got, url)
		}
	}
}

func TestSealer_DistinctNoncePerCall(t *testing.T) {
	sealer, err := NewSealer(newTestKey(t))
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	b1, err := sealer.Seal("https://hooks.example.com/abc")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	b2, err := sealer.Seal("https://hooks.example.com/abc")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Equal(b1, b2) {
		t.Error("two Seal() calls on the same plaintext produced identical blobs (nonce reuse)")
	}
}

func TestSealer_WrongKeyFailsClosed(t *testing.T) {
	sealer1, err := NewSealer(newTestKey(t))
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}
	sealer2, err := NewSealer(newTestKey(t))
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	blob, err := sealer1.Seal("https://hooks.example.com/abc")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if _, err := sealer2.Open(blob); err == nil {
		t.Error("Open() with the wrong key should fail")
	}
}

func TestSealer_TamperedBlobFailsClosed(t *testing.T) {
	sealer, err := NewSealer(newTestKey(t))
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	blob, err := sealer.Seal("https://hooks.example.com/abc")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	blob[len(blob)-1] ^= 0xFF

	if _, err := sealer.Open(blob); err == nil {
		t.Error("Open() on a tampered blob should fail")
	}
}

func TestSealer_ShortBlobRejected(t *testing.T) {
	sealer, err := NewSealer(newTestKey(t))
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}
	if _, err := sealer.Open([]byte("short")); err == nil {
		t.Error("Open() on a too-short blob should fail")
	}
}

func TestNewSealer_InvalidKeyLength(t *testing.T) {
	if _, err := NewSealer([]byte("too-short")); err == nil {
		t.Error("NewSealer() with a non-32-byte key should fail")
	}
}
