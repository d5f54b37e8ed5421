package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supabase-community/supabase-realtime-go/internal/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		env  protocol.Envelope
	}{
		{
			name: "phx_join",
			env: protocol.Envelope{
				Topic: protocol.NewTopic("db"),
				Event: protocol.EventPhxJoin,
				Payload: protocol.PhxJoin{
					AccessToken: "token-1",
					Config: protocol.JoinConfig{
						Broadcast: protocol.BroadcastConfig{Self: true, Ack: false},
						Presence:  protocol.PresenceConfig{Key: "user-1"},
						PostgresChanges: []protocol.PostgresChangeFilter{
							{Event: protocol.PostgresChangeInsert, Schema: "public", Table: "todos"},
						},
					},
				},
				Ref:     "1",
				JoinRef: "1",
			},
		},
		{
			name: "heartbeat",
			env: protocol.Envelope{
				Topic:   protocol.PhoenixTopic,
				Event:   protocol.EventHeartbeat,
				Payload: protocol.Heartbeat{AccessToken: "token-1"},
				Ref:     "2",
			},
		},
		{
			name: "broadcast",
			env: protocol.Envelope{
				Topic:   protocol.NewTopic("room-1"),
				Event:   protocol.EventBroadcast,
				Payload: protocol.Broadcast{Type: "broadcast", Event: "cursor", Payload: json.RawMessage(`{"x":1}`)},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := protocol.Encode(tc.env)
			require.NoError(t, err)

			got, err := protocol.Decode(data)
			require.NoError(t, err)

			assert.Equal(t, tc.env.Topic, got.Topic)
			assert.Equal(t, tc.env.Event, got.Event)
			assert.Equal(t, tc.env.Ref, got.Ref)
			assert.Equal(t, tc.env.Payload, got.Payload)
		})
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := protocol.Decode([]byte(`{"topic":"phoenix","event":"bogus","payload":{},"ref":"1"}`))
	require.ErrorIs(t, err, protocol.ErrUnknownEvent)
}

func TestSetAccessTokenStampsInPlace(t *testing.T) {
	env := protocol.Envelope{
		Topic:   protocol.PhoenixTopic,
		Event:   protocol.EventHeartbeat,
		Payload: protocol.Heartbeat{AccessToken: "stale"},
		Ref:     "9",
	}
	raw, err := protocol.Encode(env)
	require.NoError(t, err)

	stamped, err := protocol.SetAccessToken(raw, "fresh")
	require.NoError(t, err)

	decoded, err := protocol.Decode(stamped)
	require.NoError(t, err)
	hb, ok := decoded.Payload.(protocol.Heartbeat)
	require.True(t, ok)
	assert.Equal(t, "fresh", hb.AccessToken)
	assert.Equal(t, "9", decoded.Ref)
}

func TestPeekEventAndRef(t *testing.T) {
	env := protocol.Envelope{
		Topic:   protocol.NewTopic("db"),
		Event:   protocol.EventPhxReply,
		Payload: protocol.PhxReply{Status: "ok", Response: json.RawMessage(`{}`)},
		Ref:     "42",
	}
	raw, err := protocol.Encode(env)
	require.NoError(t, err)

	assert.Equal(t, protocol.EventPhxReply, protocol.PeekEvent(raw))
	assert.Equal(t, "42", protocol.PeekRef(raw))
}

func TestChangeRecordDecodeOpaqueFields(t *testing.T) {
	rec := protocol.ChangeRecord{
		Record:    json.RawMessage(`{"id":1,"name":"a"}`),
		OldRecord: nil,
	}

	type row struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	var r row
	require.NoError(t, rec.DecodeRecord(&r))
	assert.Equal(t, 1, r.ID)
	assert.Equal(t, "a", r.Name)

	var old row
	require.NoError(t, rec.DecodeOldRecord(&old))
	assert.Equal(t, row{}, old)
}

func TestChangeRecordDecodeNonObjectFails(t *testing.T) {
	rec := protocol.ChangeRecord{Record: json.RawMessage(`"not-an-object"`)}

	type row struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	var r row
	require.Error(t, rec.DecodeRecord(&r))
}
