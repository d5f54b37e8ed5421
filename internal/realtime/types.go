package realtime

import (
	"time"

	"github.com/supabase-community/supabase-realtime-go/internal/protocol"
)

// Config configures one Session.
type Config struct {
	// WebSocketURL is the full wss:// endpoint including apikey and vsn
	// query parameters, e.g. "<base_url>/realtime/v1/websocket?apikey=<anon>&vsn=1.0.0".
	WebSocketURL string
	// HeartbeatInterval defaults to 20s when zero.
	HeartbeatInterval time.Duration
	// OutboundQueueCapacity defaults to 10 when zero.
	OutboundQueueCapacity int64
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 20 * time.Second
	}
	if c.OutboundQueueCapacity <= 0 {
		c.OutboundQueueCapacity = 10
	}
	return c
}

// ChannelState is the per-channel lifecycle state machine.
type ChannelState int

const (
	StateClosed ChannelState = iota
	StateJoining
	StateJoined
	StateErrored
)

func (s ChannelState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Result wraps one item of the session's output sequence: either a
// decoded inbound envelope, or a session-level error ending the sequence.
type Result[T any] struct {
	Value T
	Err   error
}

// Reply is the resolved value of a completion handle for a
// client-originated ack'd message (join, broadcast, track).
type Reply struct {
	Status   string
	Response []byte
}

// BroadcastPayload is the argument to Session.Broadcast.
type BroadcastPayload struct {
	Event   string
	Payload any
}

type pendingResult struct {
	reply protocol.PhxReply
	err   error
}
