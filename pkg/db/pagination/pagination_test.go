package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID        string
	CreatedAt time.Time
}

func TestCursorRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	encoded, err := EncodeCursor(NewCursor(now, "42"))
	require.NoError(t, err)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	require.Equal(t, "42", decoded.ID)
	require.Equal(t, now.Format(time.RFC3339Nano), decoded.CreatedAt)
}

func TestBuildCursorPageInfo(t *testing.T) {
	now := time.Now()
	rows := []*row{{ID: "3", CreatedAt: now}, {ID: "2", CreatedAt: now}, {ID: "1", CreatedAt: now}}

	page, info := BuildCursorPageInfo(rows, 2, func(r *row) Cursor { return NewCursor(r.CreatedAt, r.ID) })
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "2", cursor.ID)

	page, info = BuildCursorPageInfo(rows, 5, func(r *row) Cursor { return NewCursor(r.CreatedAt, r.ID) })
	require.Len(t, page, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}
