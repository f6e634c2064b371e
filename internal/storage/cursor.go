package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is a keyset position in the characters ordered by
// (last_played, region, realm, id).
type Cursor struct {
	LastPlayed time.Time `json:"last_played"`
	Region     int       `json:"region"`
	Realm      int       `json:"realm"`
	ID         int64     `json:"id"`
}

// Encode serializes the cursor to an opaque base64 token.
func (c *Cursor) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(s string) (*Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &c, nil
}
