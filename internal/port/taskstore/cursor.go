package taskstore

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/agentrelay/agentrelay/internal/domain"
)

// Cursor is the opaque pagination position: the sort key of the last task
// on the previous page. Both store implementations share the encoding so
// tokens survive a storage driver swap within a deployment.
type Cursor struct {
	UpdatedAt time.Time `json:"u"`
	ID        string    `json:"id"`
}

// EncodeCursor serializes a cursor into an opaque page token.
func EncodeCursor(c Cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a page token. A malformed token is an invalid
// request, not a server error.
func DecodeCursor(token string) (Cursor, error) {
	var c Cursor
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, domain.ErrInvalidRequest.WithMessage("malformed page token")
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, domain.ErrInvalidRequest.WithMessage("malformed page token")
	}
	if c.ID == "" {
		return c, domain.ErrInvalidRequest.WithMessage("malformed page token")
	}
	return c, nil
}
