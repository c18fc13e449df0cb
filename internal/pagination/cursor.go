package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
)

const (
	// DefaultPageSize is used when the client does not ask for a size.
	DefaultPageSize = 15
	// MaxPageSize is the hard ceiling; larger requests are clamped.
	MaxPageSize = 100
)

// ErrBadCursor reports a token that was not produced by EncodeCursor.
var ErrBadCursor = errors.New("malformed cursor token")

// EncodeCursor returns an opaque token marking the last id of a page.
// Pagination is a strict id > cursor scan over a unique monotonic key, so
// pages never repeat or skip rows inserted after paging began.
func EncodeCursor(lastID int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(lastID, 10)))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token means
// the first page.
func DecodeCursor(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, ErrBadCursor
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id < 0 {
		return 0, ErrBadCursor
	}
	return id, nil
}

// ClampPageSize applies the default and the ceiling. Oversized requests are
// clamped, not rejected.
func ClampPageSize(requested int) int {
	if requested <= 0 {
		return DefaultPageSize
	}
	if requested > MaxPageSize {
		return MaxPageSize
	}
	return requested
}
