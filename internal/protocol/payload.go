// Package protocol encodes and decodes the Phoenix-style envelope and its
// closed set of payload variants.
package protocol

import "encoding/json"

// Event is the wire-level discriminator tag (the "event" field).
type Event string

const (
	EventPhxJoin         Event = "phx_join"
	EventPhxClose        Event = "phx_close"
	EventPhxReply        Event = "phx_reply"
	EventPhxError        Event = "phx_error"
	EventHeartbeat       Event = "heartbeat"
	EventAccessToken     Event = "access_token"
	EventPostgresChanges Event = "postgres_changes"
	EventBroadcast       Event = "broadcast"
	EventPresenceState   Event = "presence_state"
	EventPresenceDiff    Event = "presence_diff"
	EventSystem          Event = "system"
)

// Payload is the closed set of payload variants. The unexported marker
// method seals the interface to this package.
type Payload interface {
	isPayload()
	event() Event
}

// PhxJoin is the client-originated join request.
type PhxJoin struct {
	Config      JoinConfig `json:"config"`
	AccessToken string     `json:"access_token"`
}

func (PhxJoin) isPayload()   {}
func (PhxJoin) event() Event { return EventPhxJoin }

// JoinConfig describes what the channel join subscribes to.
type JoinConfig struct {
	Broadcast       BroadcastConfig       `json:"broadcast"`
	Presence        PresenceConfig        `json:"presence"`
	PostgresChanges []PostgresChangeFilter `json:"postgres_changes"`
}

// BroadcastConfig controls whether broadcasts echo to the sender and
// whether they are acknowledged with a PhxReply.
type BroadcastConfig struct {
	Self bool `json:"self"`
	Ack  bool `json:"ack"`
}

// PresenceConfig names the key presence entries are tracked under.
type PresenceConfig struct {
	Key string `json:"key"`
}

// PostgresChangeEvent is one of INSERT|UPDATE|DELETE|*.
type PostgresChangeEvent string

const (
	PostgresChangeAll    PostgresChangeEvent = "*"
	PostgresChangeInsert PostgresChangeEvent = "INSERT"
	PostgresChangeUpdate PostgresChangeEvent = "UPDATE"
	PostgresChangeDelete PostgresChangeEvent = "DELETE"
)

// PostgresChangeFilter subscribes to a single schema/table/event/filter
// combination, one entry of JoinConfig.PostgresChanges.
type PostgresChangeFilter struct {
	Event  PostgresChangeEvent `json:"event"`
	Schema string               `json:"schema"`
	Table  string               `json:"table"`
	Filter string               `json:"filter,omitempty"`
}

// PhxClose closes a channel; it carries no fields.
type PhxClose struct{}

func (PhxClose) isPayload()   {}
func (PhxClose) event() Event { return EventPhxClose }

// PhxReply answers a client-originated request identified by Ref.
type PhxReply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

func (PhxReply) isPayload()   {}
func (PhxReply) event() Event { return EventPhxReply }

// Ok reports whether the reply's status is "ok".
func (r PhxReply) Ok() bool { return r.Status == "ok" }

// PhxError signals a channel-level error; carries no fields of its own.
type PhxError struct{}

func (PhxError) isPayload()   {}
func (PhxError) event() Event { return EventPhxError }

// Heartbeat keeps the socket alive; carries only the cached access token,
// stamped immediately before send.
type Heartbeat struct {
	AccessToken string `json:"access_token,omitempty"`
}

func (Heartbeat) isPayload()   {}
func (Heartbeat) event() Event { return EventHeartbeat }

// AccessTokenPush carries a refreshed credential to the server.
type AccessTokenPush struct {
	AccessToken string `json:"access_token"`
}

func (AccessTokenPush) isPayload()   {}
func (AccessTokenPush) event() Event { return EventAccessToken }

// PostgresChanges wraps one server-pushed row change.
type PostgresChanges struct {
	Data ChangeRecord `json:"data"`
}

func (PostgresChanges) isPayload()   {}
func (PostgresChanges) event() Event { return EventPostgresChanges }

// ChangeRecord is a postgres_changes payload's "data" object. Record and
// OldRecord are held as opaque JSON nodes; decoding to a user type is a
// deferred, explicit operation.
type ChangeRecord struct {
	Schema          string              `json:"schema"`
	Table           string              `json:"table"`
	Type            PostgresChangeEvent `json:"type"`
	Columns         json.RawMessage     `json:"columns,omitempty"`
	CommitTimestamp string              `json:"commit_timestamp,omitempty"`
	Record          json.RawMessage     `json:"record,omitempty"`
	OldRecord       json.RawMessage     `json:"old_record,omitempty"`
	Errors          json.RawMessage     `json:"errors,omitempty"`
}

// DecodeRecord unmarshals Record into v. It is a no-op returning nil,
// leaving v untouched, if Record is absent or the JSON literal null;
// otherwise it returns json.Unmarshal's error, so a non-object value such
// as a string fails to decode into a struct.
func (c ChangeRecord) DecodeRecord(v any) error {
	return decodeOpaque(c.Record, v)
}

// DecodeOldRecord is DecodeRecord for OldRecord.
func (c ChangeRecord) DecodeOldRecord(v any) error {
	return decodeOpaque(c.OldRecord, v)
}

func decodeOpaque(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Broadcast is an ephemeral fan-out message on a channel.
type Broadcast struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (Broadcast) isPayload()   {}
func (Broadcast) event() Event { return EventBroadcast }

// PresenceEntry is one member occupying a presence key.
type PresenceEntry struct {
	PhxRef  string          `json:"phx_ref"`
	Payload json.RawMessage `json:"payload"`
}

// PresenceState is the full mapping from presence-key to its current
// occupants, as sent on initial join.
type PresenceState struct {
	State map[string][]PresenceEntry `json:"-"`
}

func (PresenceState) isPayload()   {}
func (PresenceState) event() Event { return EventPresenceState }

// MarshalJSON encodes PresenceState as a bare key->entries map (the wire
// shape has no envelope around it beyond the outer ProtocolMessage).
func (p PresenceState) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.State)
}

// UnmarshalJSON decodes the bare key->entries map form.
func (p *PresenceState) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.State)
}

// PresenceDiff is an apply-once delta against the current presence map.
type PresenceDiff struct {
	Joins  map[string][]PresenceEntry `json:"joins"`
	Leaves map[string][]PresenceEntry `json:"leaves"`
}

func (PresenceDiff) isPayload()   {}
func (PresenceDiff) event() Event { return EventPresenceDiff }

// System is an implementation-specific status body; the session logs it
// and exposes it unchanged on the output sequence.
type System struct {
	Raw json.RawMessage `json:"-"`
}

func (System) isPayload()   {}
func (System) event() Event { return EventSystem }

// MarshalJSON passes the raw body through unchanged.
func (s System) MarshalJSON() ([]byte, error) {
	if len(s.Raw) == 0 {
		return []byte("{}"), nil
	}
	return s.Raw, nil
}

// UnmarshalJSON captures the raw body unchanged.
func (s *System) UnmarshalJSON(data []byte) error {
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}
