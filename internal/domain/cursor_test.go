package domain

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCursorTokenRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 41, 12, 500, time.FixedZone("CET", 3600))
	c, err := ParseCursor((&Cursor{ScheduledAt: at, ID: "popup-1"}).Token())
	require.NoError(t, err)
	require.True(t, c.ScheduledAt.Equal(at))
	require.Equal(t, "popup-1", c.ID)

	var none *Cursor
	require.Empty(t, none.Token())
	c, err = ParseCursor("   ")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestParseCursorRejectsMalformedTokens(t *testing.T) {
	for _, raw := range []string{"no-separator", "yesterday|popup-1", "2025-03-10T09:00:00Z|"} {
		_, err := ParseCursor(base64.RawURLEncoding.EncodeToString([]byte(raw)))
		require.ErrorIs(t, err, ErrValidation, raw)
	}
	_, err := ParseCursor("%%%")
	require.True(t, IsValidation(err))
}
