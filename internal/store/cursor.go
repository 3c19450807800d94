package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Cursor is a keyset position inside a newest-first conversation listing:
// the created-at instant and row id of the last returned conversation.
// The instant is kept in unix microseconds, matching timestamptz
// resolution; anything coarser would misplace rows created inside the
// same tick as the page boundary. Keyset paging keeps sequential pages
// disjoint and complete even when offsets would drift.
type Cursor struct {
	CreatedAtUnixMicro int64
	ID                 int64
}

// EncodeCursor renders a cursor as an opaque URL-safe token. The zero
// cursor encodes to the empty string (first page).
func EncodeCursor(c Cursor) string {
	if c.CreatedAtUnixMicro <= 0 || c.ID <= 0 {
		return ""
	}
	raw := fmt.Sprintf("%d:%d", c.CreatedAtUnixMicro, c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token is
// the first page. Anything else that does not round-trip is an
// ErrInvalidArgument, surfaced to the caller rather than silently ignored.
func DecodeCursor(raw string) (Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Cursor{}, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidArgument)
	}
	parts := strings.SplitN(string(b), ":", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidArgument)
	}
	us, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || us <= 0 {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidArgument)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidArgument)
	}
	return Cursor{CreatedAtUnixMicro: us, ID: id}, nil
}
