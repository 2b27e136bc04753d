// Package audit implements the asynchronous audit log writer required by
// spec §4.9: writes never happen on the request hot path and never block
// the caller.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Entry is one administrative action to be recorded, per spec §3's
// AuditLog row shape.
type Entry struct {
	TenantSchema string
	ActorType    string
	ActorID      uuid.UUID
	Action       string
	ResourceType string
	ResourceID   uuid.UUID
	Details      json.RawMessage
	IPAddress    string
	UserAgent    string
}

// Writer batches entries by tenant schema and flushes them on a ticker,
// generalizing internal/audit/audit.go verbatim in structure.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// NewWriter constructs a Writer. Call Start to begin flushing and Close to
// drain and stop.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background flush goroutine.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Close stops accepting new entries and waits for the flush goroutine to
// drain what remains.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an entry without blocking. If the buffer is full the entry
// is dropped and a warning logged — audit writes must never apply
// backpressure to the caller.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit buffer full, dropping entry", "action", entry.Action, "resource_type", entry.ResourceType)
	}
}

// LogFromRequest extracts tenant schema, caller identity, IP and user
// agent from r and enqueues the resulting entry.
func (w *Writer) LogFromRequest(r *http.Request, schema, action, resourceType string, resourceID uuid.UUID, details json.RawMessage) {
	var actorType string
	var actorID uuid.UUID
	if p := credential.FromContext(r.Context()); p != nil {
		actorType = string(p.Type)
		actorID = p.ID
	}

	w.Log(Entry{
		TenantSchema: schema,
		ActorType:    actorType,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []Entry

	flushNow := func() {
		if len(pending) == 0 {
			return
		}
		w.flush(ctx, pending)
		pending = pending[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flushNow()
				return
			}
			pending = append(pending, entry)
			if len(pending) >= flushBatch {
				flushNow()
			}
		case <-ticker.C:
			flushNow()
		case <-ctx.Done():
			// Drain whatever already arrived before returning.
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flushNow()
						return
					}
					pending = append(pending, entry)
				default:
					flushNow()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(ctx context.Context, entries []Entry) {
	bySchema := make(map[string][]Entry)
	for _, e := range entries {
		bySchema[e.TenantSchema] = append(bySchema[e.TenantSchema], e)
	}

	for schema, group := range bySchema {
		conn, err := tenant.Acquire(ctx, w.pool, schema)
		if err != nil {
			w.logger.Error("acquiring connection for audit flush", "schema", schema, "error", err)
			continue
		}

		for _, e := range group {
			_, err := conn.Exec(ctx,
				`INSERT INTO audit_logs (actor_type, actor_id, action, resource_type, resource_id, details, ip_address, user_agent)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				e.ActorType, e.ActorID, e.Action, e.ResourceType, e.ResourceID, e.Details, e.IPAddress, e.UserAgent,
			)
			if err != nil {
				w.logger.Error("writing audit log entry", "error", err, "action", e.Action)
			}
		}

		conn.Release()
	}
}

// PurgeOlderThan deletes audit log rows past retention, the only
// permitted write against an otherwise append-only table (spec §4.9:
// "never updated or deleted except by a retention sweeper").
func (w *Writer) PurgeOlderThan(ctx context.Context, schema string, retention time.Duration) (int64, error) {
	conn, err := tenant.Acquire(ctx, w.pool, schema)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM audit_logs WHERE "timestamp" < now() - $1::interval`, retention.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// clientIP resolves the caller's IP from X-Forwarded-For, then
// X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if addrPort, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return addrPort.Addr().String()
	}
	return r.RemoteAddr
}
