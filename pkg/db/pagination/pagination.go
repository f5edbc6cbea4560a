package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=20" binding:"gte=0,lte=250"`
}

type Cursor struct {
	CreatedAt string `json:"created_at,omitempty"`
	ID        string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func NewCursor(createdAt time.Time, id string) Cursor {
	return Cursor{CreatedAt: createdAt.UTC().Format(time.RFC3339Nano), ID: id}
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// BuildCursorPageInfo trims a result fetched with limit+1 rows back to limit
// and reports whether more rows exist.
func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) Cursor) ([]*T, *PageInfo) {
	if len(data) == 0 {
		return data, &PageInfo{HasMore: false}
	}

	hasMore := false
	if limit > 0 && len(data) > limit {
		hasMore = true
		data = data[:limit]
	}

	info := &PageInfo{HasMore: hasMore}
	if hasMore {
		info.NextCursor, _ = EncodeCursor(extractCursor(data[len(data)-1]))
	}

	return data, info
}
