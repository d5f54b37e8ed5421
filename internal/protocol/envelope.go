package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrUnknownEvent is returned by Decode when the envelope's "event" field
// does not match any known Payload variant.
var ErrUnknownEvent = errors.New("protocol: unknown event")

// Envelope is the five-field Phoenix wire frame:
// topic/event/payload/ref/join_ref.
type Envelope struct {
	Topic   Topic   `json:"topic"`
	Event   Event   `json:"event"`
	Payload Payload `json:"payload"`
	Ref     string  `json:"ref,omitempty"`
	JoinRef string  `json:"join_ref,omitempty"`
}

// wireEnvelope mirrors Envelope but with Payload left as a raw node so
// Encode/Decode can dispatch on Event before committing to a concrete type.
type wireEnvelope struct {
	Topic   Topic           `json:"topic"`
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

// Encode serializes an Envelope to its wire JSON form.
func Encode(e Envelope) ([]byte, error) {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode payload: %w", err)
	}
	out, err := json.Marshal(wireEnvelope{
		Topic:   e.Topic,
		Event:   e.Event,
		Payload: body,
		Ref:     e.Ref,
		JoinRef: e.JoinRef,
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode envelope: %w", err)
	}
	return out, nil
}

// Decode parses the wire JSON form into an Envelope, dispatching the
// payload to its concrete variant by the envelope's event tag.
func Decode(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}

	payload, err := decodePayload(w.Event, w.Payload)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Topic:   w.Topic,
		Event:   w.Event,
		Payload: payload,
		Ref:     w.Ref,
		JoinRef: w.JoinRef,
	}, nil
}

func decodePayload(event Event, raw json.RawMessage) (Payload, error) {
	var (
		payload Payload
		err     error
	)

	switch event {
	case EventPhxJoin:
		var p PhxJoin
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventPhxClose:
		payload = PhxClose{}
	case EventPhxReply:
		var p PhxReply
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventPhxError:
		payload = PhxError{}
	case EventHeartbeat:
		var p Heartbeat
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventAccessToken:
		var p AccessTokenPush
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventPostgresChanges:
		var p PostgresChanges
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventBroadcast:
		var p Broadcast
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventPresenceState:
		var p PresenceState
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventPresenceDiff:
		var p PresenceDiff
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventSystem:
		var p System
		err = json.Unmarshal(raw, &p)
		payload = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s payload: %w", event, err)
	}
	return payload, nil
}

// SetAccessToken overwrites the access_token field of an already-encoded
// envelope in place, without re-marshaling the payload or its parent
// struct, so a caller holding a pre-encoded frame can replace only the
// token. The realtime session does not call it: it encodes each heartbeat
// and access_token frame at send time with the current token.
func SetAccessToken(raw []byte, token string) ([]byte, error) {
	out, err := sjson.SetBytes(raw, "payload.access_token", token)
	if err != nil {
		return nil, fmt.Errorf("protocol: stamp access_token: %w", err)
	}
	return out, nil
}

// PeekEvent reads the "event" field of an encoded envelope without fully
// decoding it or committing to a concrete Payload type.
func PeekEvent(raw []byte) Event {
	return Event(gjson.GetBytes(raw, "event").String())
}

// PeekRef reads the "ref" field of an encoded envelope without fully
// decoding it.
func PeekRef(raw []byte) string {
	return gjson.GetBytes(raw, "ref").String()
}
