package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supabase-community/supabase-realtime-go/internal/authtransport"
	"github.com/supabase-community/supabase-realtime-go/internal/jwtstream"
	"github.com/supabase-community/supabase-realtime-go/internal/protocol"
	"github.com/supabase-community/supabase-realtime-go/internal/wstransport"
)

// fakeTicker lets heartbeat cadence tests step a deterministic clock
// instead of waiting on real time.
type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

// echoServer upgrades one connection and hands received/sent frames back
// to the test over channels, acking phx_join and broadcast with a
// PhxReply{status: "ok"}.
type echoServer struct {
	srv      *httptest.Server
	received chan []byte
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 32)

	mux := http.NewServeMux()
	mux.HandleFunc("/realtime", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data

			env, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			if env.Ref == "" {
				continue
			}
			switch env.Payload.(type) {
			case protocol.PhxJoin, protocol.Broadcast:
				reply := protocol.Envelope{
					Topic:   env.Topic,
					Event:   protocol.EventPhxReply,
					Payload: protocol.PhxReply{Status: "ok", Response: json.RawMessage(`{}`)},
					Ref:     env.Ref,
					JoinRef: env.JoinRef,
				}
				out, _ := protocol.Encode(reply)
				_ = conn.WriteMessage(websocket.TextMessage, out)
			}
		}
	})

	srv := httptest.NewServer(mux)
	return &echoServer{srv: srv, received: received}
}

func (e *echoServer) wsURL() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/realtime"
}

func (e *echoServer) close() { e.srv.Close() }

func dialTestSession(t *testing.T, e *echoServer, tokens <-chan jwtstream.Item) *Session {
	t.Helper()
	conn, err := wstransport.Dial(context.Background(), e.wsURL(), nil, nil)
	require.NoError(t, err)
	return newSession(Config{}.withDefaults(), conn, protocol.NewTopic("test"), tokens, nil)
}

func TestJoinThenBroadcast(t *testing.T) {
	e := newEchoServer(t)
	defer e.close()

	tokens := make(chan jwtstream.Item)
	defer close(tokens)
	s := dialTestSession(t, e, tokens)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	joinReply, err := s.Join(ctx, protocol.JoinConfig{})
	require.NoError(t, err)
	assert.Equal(t, "ok", joinReply.Status)
	assert.Equal(t, StateJoined, s.State())

	broadcastReply, err := s.Broadcast(ctx, BroadcastPayload{Event: "cursor", Payload: map[string]int{"x": 1}})
	require.NoError(t, err)
	assert.Equal(t, "ok", broadcastReply.Status)
}

func TestHeartbeatCarriesLatestToken(t *testing.T) {
	e := newEchoServer(t)
	defer e.close()

	orig := newTicker
	fake := &fakeTicker{ch: make(chan time.Time, 1)}
	newTicker = func(time.Duration) ticker { return fake }
	defer func() { newTicker = orig }()

	tokens := make(chan jwtstream.Item, 1)
	s := dialTestSession(t, e, tokens)
	defer s.Close()
	defer close(tokens)

	tokens <- jwtstream.Item{Response: authtransport.TokenResponse{AccessToken: "A1"}}

	// give the jwt-consumer goroutine a chance to store the token before
	// the heartbeat tick fires.
	time.Sleep(50 * time.Millisecond)

	fake.ch <- time.Now()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-e.received:
			if protocol.PeekEvent(data) != protocol.EventHeartbeat {
				continue
			}
			env, err := protocol.Decode(data)
			require.NoError(t, err)
			hb, ok := env.Payload.(protocol.Heartbeat)
			require.True(t, ok)
			assert.Equal(t, "A1", hb.AccessToken)
			return
		case <-deadline:
			t.Fatal("timed out waiting for heartbeat frame")
		}
	}
}
