package index

import (
	"encoding/base64"
	"encoding/json"

	apperrors "github.com/dutchbook/dutchbook/common/errors"
)

// Cursor is the opaque pagination token: the last-evaluated key plus the
// index it was produced against. A cursor presented against a different
// index is a validation error, never reinterpreted.
type Cursor struct {
	Index      string `json:"index"`
	PrimaryKey string `json:"pk"`
	SortKey    int64  `json:"sk"`
}

// Encode serializes the cursor for the client.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an encoded cursor and checks it against the index the
// current query resolved to.
func DecodeCursor(encoded, expectedIndex string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Cursor{}, apperrors.WrapValidation(err, "malformed cursor")
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, apperrors.WrapValidation(err, "malformed cursor")
	}
	if c.Index == "" || c.PrimaryKey == "" {
		return Cursor{}, apperrors.Validationf("malformed cursor: missing fields")
	}
	if c.Index != expectedIndex {
		return Cursor{}, apperrors.Validationf(
			"cursor was produced against index %q, query resolves to %q", c.Index, expectedIndex)
	}
	return c, nil
}
