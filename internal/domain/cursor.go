package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Cursor pages pop-up history from newest to oldest. It marks the last item of the
// previous page.
type Cursor struct {
	ScheduledAt time.Time
	ID          string
}

// Token encodes the cursor for clients. A nil cursor yields "".
func (c *Cursor) Token() string {
	if c == nil {
		return ""
	}
	raw := c.ScheduledAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token produced by Token. A blank token means the first page.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor is not valid base64", ErrValidation)
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	scheduledAt, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor timestamp", ErrValidation)
	}
	return &Cursor{ScheduledAt: scheduledAt, ID: id}, nil
}
