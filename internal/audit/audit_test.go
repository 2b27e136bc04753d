package audit

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/credential"
)

func TestClientIP_XForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")

	if got, want := clientIP(r), "203.0.113.50"; got != want {
		t.Errorf("clientIP() = %q, want %q", got, want)
	}
}

func TestClientIP_XRealIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.23")

	if got, want := clientIP(r), "198.51.100.23"; got != want {
		t.Errorf("clientIP() = %q, want %q", got, want)
	}
}

func TestClientIP_RemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:12345"

	if got, want := clientIP(r), "192.0.2.1"; got != want {
		t.Errorf("clientIP() = %q, want %q", got, want)
	}
}

func TestClientIP_Precedence(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50")
	r.Header.Set("X-Real-IP", "198.51.100.23")
	r.RemoteAddr = "192.0.2.1:12345"

	if got, want := clientIP(r), "203.0.113.50"; got != want {
		t.Errorf("clientIP() = %q, want %q (X-Forwarded-For should take precedence)", got, want)
	}
}

func TestClientIP_XRealIPFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.23")
	r.RemoteAddr = "192.0.2.1:12345"

	if got, want := clientIP(r), "198.51.100.23"; got != want {
		t.Errorf("clientIP() = %q, want %q (X-Real-IP should take precedence over RemoteAddr)", got, want)
	}
}

func TestClientIP_InvalidXFFReturnedVerbatim(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	r.RemoteAddr = "192.0.2.1:12345"

	// clientIP trusts the first X-Forwarded-For hop verbatim (it's
	// informational, not parsed as an address), so a malformed value is
	// still returned rather than triggering the RemoteAddr fallback.
	if got, want := clientIP(r), "not-an-ip"; got != want {
		t.Errorf("clientIP() = %q, want %q", got, want)
	}
}

func TestLog_DropsWhenFull(t *testing.T) {
	w := NewWriter(nil, slog.Default())
	// Don't start the background goroutine — nothing drains the channel.

	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Action: "test", ResourceType: "agent"})
	}

	// The next log should be dropped (non-blocking), not deadlock the test.
	w.Log(Entry{Action: "dropped", ResourceType: "agent"})

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestLogFromRequest_ExtractsFields(t *testing.T) {
	w := NewWriter(nil, slog.Default())
	// Don't start — read directly from the channel instead.

	r := httptest.NewRequest("POST", "/stacks", nil)
	r.Header.Set("User-Agent", "test-agent/1.0")
	r.Header.Set("X-Real-IP", "198.51.100.23")

	resourceID := uuid.New()
	w.LogFromRequest(r, "tenant_acme", "stack.created", "stack", resourceID, nil)

	entry := <-w.entries

	if entry.TenantSchema != "tenant_acme" {
		t.Errorf("TenantSchema = %q, want %q", entry.TenantSchema, "tenant_acme")
	}
	if entry.Action != "stack.created" {
		t.Errorf("Action = %q, want %q", entry.Action, "stack.created")
	}
	if entry.ResourceType != "stack" {
		t.Errorf("ResourceType = %q, want %q", entry.ResourceType, "stack")
	}
	if entry.ResourceID != resourceID {
		t.Errorf("ResourceID = %v, want %v", entry.ResourceID, resourceID)
	}
	if entry.IPAddress != "198.51.100.23" {
		t.Errorf("IPAddress = %q, want %q", entry.IPAddress, "198.51.100.23")
	}
	if entry.UserAgent != "test-agent/1.0" {
		t.Errorf("UserAgent = %q, want %q", entry.UserAgent, "test-agent/1.0")
	}
	// No principal in context: actor fields stay at their zero values.
	if entry.ActorType != "" {
		t.Errorf("ActorType = %q, want empty", entry.ActorType)
	}
}

func TestLogFromRequest_ExtractsPrincipalFromContext(t *testing.T) {
	w := NewWriter(nil, slog.Default())

	r := httptest.NewRequest("POST", "/stacks", nil)
	agentID := uuid.New()
	principal := &credential.Principal{Type: credential.PrincipalAgent, ID: agentID, Name: "a1"}
	r = r.WithContext(credential.NewContext(r.Context(), principal))

	w.LogFromRequest(r, "", "stack.created", "stack", uuid.New(), nil)

	entry := <-w.entries
	if entry.ActorType != "agent" {
		t.Errorf("ActorType = %q, want %q", entry.ActorType, "agent")
	}
	if entry.ActorID != agentID {
		t.Errorf("ActorID = %v, want %v", entry.ActorID, agentID)
	}
}
