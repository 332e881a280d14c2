package curation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor encodes the position after the last-seen item in a ranked sequence:
// its id and relevance score. That pair is enough to resume a
// score-then-id-descending ordering without re-scanning earlier pages.
type Cursor struct {
	LastID    string  `json:"id"`
	LastScore float64 `json:"s"`
}

// Encode returns the opaque token form of the cursor.
func (c Cursor) Encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses an opaque token back into a cursor.
func DecodeCursor(token string) (*Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.LastID == "" {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// follows reports whether an item at (score, id) comes strictly after the
// cursor position in score-then-id-descending order.
func (c *Cursor) follows(score float64, id string) bool {
	if score != c.LastScore {
		return score < c.LastScore
	}
	return id < c.LastID
}
