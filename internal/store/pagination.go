package store

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"time"
)

type CursorPage struct {
	Items      interface{} `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor returns nil for an empty cursor, meaning "start from the newest order".
func DecodeCursor(encoded string) (*OrderCursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	var cursor OrderCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// bounds converts the cursor into nullable query parameters. Both are NULL
// on the first page.
func (c *OrderCursor) bounds() (sql.NullTime, sql.NullInt64) {
	if c == nil {
		return sql.NullTime{}, sql.NullInt64{}
	}
	return sql.NullTime{Time: c.CreatedAt, Valid: true}, sql.NullInt64{Int64: c.ID, Valid: true}
}
