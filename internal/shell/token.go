package shell

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Token identifies a shell session: a channel within an SSH connection.
// It is immutable once created. The canonical string form
// "<connection-uuid>/<channel-id>" is both the display form and the wire
// form used as a map key and in API paths.
type Token struct {
	ConnectionID uuid.UUID
	ChannelID    string
}

// String returns the canonical "<connection-uuid>/<channel-id>" form.
func (t Token) String() string {
	return fmt.Sprintf("%s/%s", t.ConnectionID, t.ChannelID)
}

// ParseToken decodes the canonical string form back into a Token. It is the
// left inverse of String: for every token t, ParseToken(t.String()) == t.
// Malformed input (missing separator, empty channel id, invalid UUID) yields
// a *TokenError, never a panic.
func ParseToken(s string) (Token, error) {
	first, rest, ok := strings.Cut(s, "/")
	if !ok {
		return Token{}, &TokenError{Input: s, Reason: "missing '/' separator"}
	}
	if rest == "" {
		return Token{}, &TokenError{Input: s, Reason: "empty channel id"}
	}
	id, err := uuid.Parse(first)
	if err != nil {
		return Token{}, &TokenError{Input: s, Reason: fmt.Sprintf("invalid connection id: %v", err)}
	}
	return Token{ConnectionID: id, ChannelID: rest}, nil
}

// MarshalText implements encoding.TextMarshaler so tokens serialize as their
// canonical string wherever they cross a JSON or map-key boundary.
func (t Token) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Token) UnmarshalText(text []byte) error {
	parsed, err := ParseToken(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
