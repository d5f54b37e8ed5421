package authtransport

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Components wrap these with %w so callers can
// classify a failure with errors.Is without inspecting strings.
var (
	// ErrConfig marks a non-retryable construction-time problem: an
	// invalid base URL or a header value that cannot be encoded.
	ErrConfig = errors.New("authtransport: config error")

	// ErrTransport marks a network/TLS/HTTP failure. Retryable by jwtstream
	// within its bounded counter.
	ErrTransport = errors.New("authtransport: transport error")

	// ErrProtocol marks a JSON decode failure on either the success or
	// error branch of a response. Non-retryable.
	ErrProtocol = errors.New("authtransport: protocol error")
)

// AuthError wraps a typed server error decoded from the token endpoint.
// It is retryable under jwtstream's bounded counter.
type AuthError struct {
	Response ErrorResponse
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authtransport: server rejected request (status %d): %s", e.Status, e.Response.Error())
}
