package credential

import "testing"

func TestStore_HashToken_Deterministic(t *testing.T) {
	s := &Store{Pepper: []byte("pepper")}

	h1 := s.HashToken("brokkr_abc123_secret")
	h2 := s.HashToken("brokkr_abc123_secret")
	if h1 != h2 {
		t.Fatalf("same token produced different hashes: %q vs %q", h1, h2)
	}

	h3 := s.HashToken("brokkr_abc123_other")
	if h1 == h3 {
		t.Fatal("different tokens produced the same hash")
	}
}

func TestStore_HashToken_PepperChangesHash(t *testing.T) {
	s1 := &Store{Pepper: []byte("pepper-a")}
	s2 := &Store{Pepper: []byte("pepper-b")}

	if s1.HashToken("brokkr_abc_secret") == s2.HashToken("brokkr_abc_secret") {
		t.Error("same token hashed under different peppers should differ")
	}
}

func TestGenerateToken(t *testing.T) {
	plaintext, shortID, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error = %v", err)
	}
	if shortID == "" {
		t.Error("shortID should not be empty")
	}
	if len(plaintext) < len(TokenPrefix)+len(shortID) {
		t.Fatalf("plaintext %q too short to contain prefix+shortID", plaintext)
	}
	if plaintext[:len(TokenPrefix)] != TokenPrefix {
		t.Errorf("plaintext %q should start with %q", plaintext, TokenPrefix)
	}
}

func TestGenerateToken_Unique(t *testing.T) {
	p1, _, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error = %v", err)
	}
	p2, _, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error = %v", err)
	}
	if p1 == p2 {
		t.Error("two generateToken() calls produced identical plaintexts")
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := t.Context()

	if p := FromContext(ctx); p != nil {
		t.Fatalf("expected nil principal, got %+v", p)
	}

	want := &Principal{Type: PrincipalAgent, Name: "a1"}
	ctx = NewContext(ctx, want)

	got := FromContext(ctx)
	if got != want {
		t.Fatalf("FromContext() = %+v, want %+v", got, want)
	}
}
