package realtime

import (
	"errors"
	"fmt"
)

// ErrConnectionClosed ends the output sequence and rejects every pending
// completion handle; it is returned whenever the socket closes, cleanly
// or abruptly.
var ErrConnectionClosed = errors.New("realtime: connection closed")

// ErrChannel wraps a PhxReply(error) or PhxError observed for a pending
// ref. It is surfaced to the originating caller's completion handle only;
// it never closes the session.
var ErrChannel = errors.New("realtime: channel error")

// ChannelError carries the server-provided error response alongside the
// sentinel ErrChannel so callers can both errors.Is and inspect detail.
type ChannelError struct {
	Ref      string
	Response []byte
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("realtime: channel error for ref %s: %s", e.Ref, string(e.Response))
}

func (e *ChannelError) Unwrap() error { return ErrChannel }
