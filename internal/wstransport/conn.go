// Package wstransport wraps gorilla/websocket with the dial/read/write
// surface a long-lived realtime session needs: a context-aware Dial,
// binary-frame log-and-skip, and a graceful close handshake.
package wstransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrClosed names a closed connection. ReadMessage and WriteMessage do not
// return it: after Close they return the underlying websocket error,
// wrapped with a "wstransport:" prefix.
var ErrClosed = errors.New("wstransport: connection closed")

const handshakeTimeout = 10 * time.Second

// Conn is a thin, serialized wrapper over *websocket.Conn. Writes are not
// safe for concurrent use by multiple goroutines per gorilla's contract;
// callers (the realtime session's single writer goroutine) must respect
// that themselves. Conn does not add its own write mutex because the
// session already serializes writes through one channel.
type Conn struct {
	ws     *websocket.Conn
	logger *logrus.Entry
}

// Dial opens the websocket handshake against url (already including any
// apikey/vsn query parameters), honoring ctx for cancellation during the
// handshake and using the host's native TLS trust roots.
func Dial(ctx context.Context, url string, header http.Header, logger *logrus.Entry) (*Conn, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("wstransport: dial: %w", err)
	}
	return &Conn{ws: ws, logger: logger.WithField("component", "wstransport")}, nil
}

// ReadMessage blocks for the next text frame, skipping (and logging) any
// binary frames since the Phoenix realtime protocol is JSON-text only.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("wstransport: read: %w", err)
		}
		if kind != websocket.TextMessage {
			c.logger.WithField("frame_type", kind).Warn("discarding non-text frame")
			continue
		}
		return data, nil
	}
}

// WriteMessage sends one text frame.
func (c *Conn) WriteMessage(data []byte) error {
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("wstransport: write: %w", err)
	}
	return nil
}

// Close performs the close handshake: it sends a close frame with a
// short deadline, then tears down the underlying connection. Errors
// sending the close frame are logged, not returned, since the socket is
// going away regardless.
func (c *Conn) Close() error {
	deadline := time.Now().Add(time.Second)
	if err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
		c.logger.WithError(err).Debug("error sending close frame")
	}
	return c.ws.Close()
}

// IsUnexpectedClose reports whether err represents an abnormal close the
// caller should log, as opposed to the two expected flavors of shutdown.
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
