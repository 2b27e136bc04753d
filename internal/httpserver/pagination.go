package httpserver

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// Cursor identifies a position in a sequence_id-ordered listing.
type Cursor struct {
	SequenceID int64
	ID         uuid.UUID
}

// EncodeCursor serializes a cursor as an opaque base64 token.
func EncodeCursor(c Cursor) string {
	raw := fmt.Sprintf("%d:%s", c.SequenceID, c.ID.String())
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("invalid cursor format")
	}
	seq, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor sequence: %w", err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor id: %w", err)
	}
	return Cursor{SequenceID: seq, ID: id}, nil
}

// CursorParams holds parsed "after"/"limit" query parameters.
type CursorParams struct {
	After *Cursor
	Limit int
}

// ParseCursorParams reads after/limit from the request query string.
func ParseCursorParams(r *http.Request) (CursorParams, error) {
	params := CursorParams{Limit: DefaultPageSize}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return params, fmt.Errorf("limit must be a positive integer")
		}
		if n > MaxPageSize {
			n = MaxPageSize
		}
		params.Limit = n
	}

	if v := r.URL.Query().Get("after"); v != "" {
		c, err := DecodeCursor(v)
		if err != nil {
			return params, err
		}
		params.After = &c
	}

	return params, nil
}

// CursorPage is a generic page of T ordered by an opaque cursor.
type CursorPage[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// NewCursorPage trims a limit+1-sized fetch down to a page, deriving
// HasMore/NextCursor from whether the extra row was present.
func NewCursorPage[T any](items []T, limit int, cursorOf func(T) Cursor) CursorPage[T] {
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	page := CursorPage[T]{Items: items, HasMore: hasMore}
	if hasMore && len(items) > 0 {
		page.NextCursor = EncodeCursor(cursorOf(items[len(items)-1]))
	}
	return page
}

// OffsetParams holds parsed page/page_size query parameters.
type OffsetParams struct {
	Page     int
	PageSize int
	Offset   int
}

// ParseOffsetParams reads page/page_size from the request query string.
func ParseOffsetParams(r *http.Request) (OffsetParams, error) {
	params := OffsetParams{Page: 1, PageSize: DefaultPageSize}

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return params, fmt.Errorf("page must be a positive integer")
		}
		params.Page = n
	}

	if v := r.URL.Query().Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return params, fmt.Errorf("page_size must be a positive integer")
		}
		if n > MaxPageSize {
			n = MaxPageSize
		}
		params.PageSize = n
	}

	params.Offset = (params.Page - 1) * params.PageSize
	return params, nil
}

// OffsetPage is a generic page of T with total counts.
type OffsetPage[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewOffsetPage builds an OffsetPage from items and the total row count.
func NewOffsetPage[T any](items []T, params OffsetParams, total int) OffsetPage[T] {
	totalPages := total / params.PageSize
	if total%params.PageSize != 0 {
		totalPages++
	}
	return OffsetPage[T]{
		Items:      items,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}
