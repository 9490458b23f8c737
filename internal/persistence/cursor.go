// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ademcan75/pomopro-dev/internal/domain"
)

// ErrBadCursor is returned for tokens that cannot be decoded.
var ErrBadCursor = errors.New("malformed cursor token")

// cursorSep joins the keyset columns inside the encoded token. The
// timestamp uses RFC3339Nano so two cursors for the same session never
// collide on truncated precision.
const cursorSep = "|"

// EncodeCursor serialises a keyset position into an opaque token the
// client passes back verbatim. A nil cursor means the listing is
// exhausted and encodes to the empty string.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := c.StartedAt.UTC().Format(time.RFC3339Nano) + cursorSep + c.ID
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a client-supplied token back into a keyset
// position. Empty or blank tokens decode to nil, meaning "from the top".
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}

	tsPart, id, found := strings.Cut(string(decoded), cursorSep)
	if !found || id == "" {
		return nil, ErrBadCursor
	}

	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}

	return &domain.Cursor{StartedAt: ts, ID: id}, nil
}
