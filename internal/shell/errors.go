package shell

import (
	"errors"
	"fmt"
)

// ErrDisconnected is returned when an operation requires the remote channel
// or the outbound write queue and neither is available: the session never
// started, or it has already been torn down. It is always recoverable by the
// caller; the session is simply over.
var ErrDisconnected = errors.New("shell: disconnected")

// TokenError describes a malformed session token string. Decoding never
// panics on bad input; it surfaces one of these instead.
type TokenError struct {
	Input  string
	Reason string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("shell: malformed token %q: %s", e.Input, e.Reason)
}
