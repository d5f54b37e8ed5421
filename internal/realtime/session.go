// Package realtime is the duplex Phoenix-channel multiplexer. It owns one
// websocket connection, consumes the jwtstream as a side-input, emits
// heartbeats, and exposes a small command API plus a decoded
// inbound-message output sequence.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/supabase-community/supabase-realtime-go/internal/jwtstream"
	"github.com/supabase-community/supabase-realtime-go/internal/protocol"
	"github.com/supabase-community/supabase-realtime-go/internal/wstransport"
)

// Session is a single long-lived channel connection, multiplexing
// heartbeats, JWT rotation, outbound commands, and inbound frames across
// four cooperating goroutines (reader, writer, jwt-consumer,
// heartbeat-ticker) joined by an errgroup.Group.
type Session struct {
	cfg    Config
	conn   *wstransport.Conn
	logger *logrus.Entry
	topic  protocol.Topic

	queueSem *semaphore.Weighted
	outbound chan []byte

	tokenPush     chan string
	heartbeatTick chan struct{}
	currentToken  atomic.Value // string

	joinRefMu sync.RWMutex
	joinRef   string

	pendingMu sync.Mutex
	pending   map[string]chan pendingResult

	stateMu sync.RWMutex
	state   ChannelState

	presenceMu sync.RWMutex
	presence   map[string][]protocol.PresenceEntry

	messages chan Result[protocol.Envelope]

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Connect dials the websocket, spins up the four session goroutines, and
// returns once the socket handshake succeeds. tokens is typically the
// output of a jwtstream.Stream.Run call.
func Connect(ctx context.Context, cfg Config, topic protocol.Topic, tokens <-chan jwtstream.Item, logger *logrus.Entry) (*Session, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg = cfg.withDefaults()

	conn, err := wstransport.Dial(ctx, cfg.WebSocketURL, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("realtime: connect: %w", err)
	}

	return newSession(cfg, conn, topic, tokens, logger), nil
}

func newSession(cfg Config, conn *wstransport.Conn, topic protocol.Topic, tokens <-chan jwtstream.Item, logger *logrus.Entry) *Session {
	sessCtx, cancel := context.WithCancel(context.Background())

	s := &Session{
		cfg:           cfg,
		conn:          conn,
		logger:        logger.WithField("component", "realtime"),
		topic:         topic,
		queueSem:      semaphore.NewWeighted(cfg.OutboundQueueCapacity),
		outbound:      make(chan []byte, cfg.OutboundQueueCapacity),
		tokenPush:     make(chan string),
		heartbeatTick: make(chan struct{}),
		pending:       make(map[string]chan pendingResult),
		presence:      make(map[string][]protocol.PresenceEntry),
		messages:      make(chan Result[protocol.Envelope], 16),
		cancel:        cancel,
	}
	s.currentToken.Store("")

	eg, egCtx := errgroup.WithContext(sessCtx)
	eg.Go(func() error { return s.readLoop(egCtx) })
	eg.Go(func() error { return s.writeLoop(egCtx) })
	eg.Go(func() error { return s.jwtLoop(egCtx, tokens) })
	eg.Go(func() error { return s.heartbeatLoop(egCtx) })

	go func() {
		err := eg.Wait()
		s.terminate(err)
	}()

	return s
}

// Messages is the output sequence of decoded inbound envelopes; it
// closes once the session ends.
func (s *Session) Messages() <-chan Result[protocol.Envelope] {
	return s.messages
}

// State returns the current channel lifecycle state.
func (s *Session) State() ChannelState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// PresenceState returns a deep-copied snapshot of the current presence map.
func (s *Session) PresenceState() map[string][]protocol.PresenceEntry {
	s.presenceMu.RLock()
	defer s.presenceMu.RUnlock()
	out := make(map[string][]protocol.PresenceEntry, len(s.presence))
	for k, v := range s.presence {
		cp := make([]protocol.PresenceEntry, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Close ends the session: it cancels the internal goroutines, sends a
// close frame, and rejects every pending completion handle with
// ErrConnectionClosed.
func (s *Session) Close() error {
	s.terminate(ErrConnectionClosed)
	return nil
}

func (s *Session) terminate(cause error) {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close()
		s.rejectAllPending(cause)
		s.setState(StateClosed)
		if cause != nil {
			s.messages <- Result[protocol.Envelope]{Err: cause}
		}
		close(s.messages)
	})
}

// Join sends phx_join for the session's topic and blocks for the
// matching PhxReply. On success the channel transitions to Joined and
// the reply's ref becomes the join_ref for subsequent messages.
func (s *Session) Join(ctx context.Context, config protocol.JoinConfig) (*Reply, error) {
	ref := uuid.NewString()
	s.joinRefMu.Lock()
	s.joinRef = ref
	s.joinRefMu.Unlock()
	s.setState(StateJoining)

	payload := protocol.PhxJoin{Config: config, AccessToken: s.loadToken()}
	return s.sendAwaitingReply(ctx, protocol.EventPhxJoin, payload, ref, ref)
}

// SubscribeToChanges re-joins with an updated set of postgres_changes
// filters; callers typically build the full JoinConfig with the desired
// filter list and call Join again. This helper keeps the broadcast and
// presence config at their zero value for the common case of a
// changes-only subscription.
func (s *Session) SubscribeToChanges(ctx context.Context, filters []protocol.PostgresChangeFilter) (*Reply, error) {
	return s.Join(ctx, protocol.JoinConfig{PostgresChanges: filters})
}

// Broadcast sends an ephemeral fan-out message and blocks for its PhxReply.
func (s *Session) Broadcast(ctx context.Context, payload BroadcastPayload) (*Reply, error) {
	raw, err := marshalAny(payload.Payload)
	if err != nil {
		return nil, err
	}
	body := protocol.Broadcast{Type: "broadcast", Event: payload.Event, Payload: raw}
	return s.sendAwaitingReply(ctx, protocol.EventBroadcast, body, uuid.NewString(), s.currentJoinRef())
}

// Track sends a presence-track message bound to the current join_ref.
func (s *Session) Track(ctx context.Context, payload any) (*Reply, error) {
	raw, err := marshalAny(payload)
	if err != nil {
		return nil, err
	}
	body := protocol.Broadcast{Type: "presence", Event: "track", Payload: raw}
	return s.sendAwaitingReply(ctx, protocol.EventBroadcast, body, uuid.NewString(), s.currentJoinRef())
}

// Untrack removes this client from the channel's presence set.
func (s *Session) Untrack(ctx context.Context) error {
	body := protocol.Broadcast{Type: "presence", Event: "untrack"}
	_, err := s.sendAwaitingReply(ctx, protocol.EventBroadcast, body, uuid.NewString(), s.currentJoinRef())
	return err
}

// Leave sends phx_close for the current channel.
func (s *Session) Leave(ctx context.Context) error {
	_, err := s.sendAwaitingReply(ctx, protocol.EventPhxClose, protocol.PhxClose{}, uuid.NewString(), s.currentJoinRef())
	return err
}

func (s *Session) currentJoinRef() string {
	s.joinRefMu.RLock()
	defer s.joinRefMu.RUnlock()
	return s.joinRef
}

func (s *Session) loadToken() string {
	v, _ := s.currentToken.Load().(string)
	return v
}

func (s *Session) setState(v ChannelState) {
	s.stateMu.Lock()
	s.state = v
	s.stateMu.Unlock()
}

func marshalAny(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// sendAwaitingReply registers a pending-reply handle, enqueues the
// encoded envelope behind the bounded outbound queue, and blocks for
// either the matching PhxReply or ctx cancellation. Acquiring the
// semaphore before enqueueing gives cooperative backpressure without
// corrupting the queue if ctx is canceled while waiting for space.
func (s *Session) sendAwaitingReply(ctx context.Context, event protocol.Event, payload protocol.Payload, ref, joinRef string) (*Reply, error) {
	env := protocol.Envelope{Topic: s.topic, Event: event, Payload: payload, Ref: ref, JoinRef: joinRef}
	raw, err := protocol.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("realtime: encode %s: %w", event, err)
	}

	done := make(chan pendingResult, 1)
	s.pendingMu.Lock()
	s.pending[ref] = done
	s.pendingMu.Unlock()

	deregister := func() {
		s.pendingMu.Lock()
		delete(s.pending, ref)
		s.pendingMu.Unlock()
	}

	if err := s.queueSem.Acquire(ctx, 1); err != nil {
		deregister()
		return nil, err
	}

	select {
	case s.outbound <- raw:
	case <-ctx.Done():
		s.queueSem.Release(1)
		deregister()
		return nil, ctx.Err()
	}

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return &Reply{Status: res.reply.Status, Response: res.reply.Response}, nil
	case <-ctx.Done():
		deregister()
		return nil, ctx.Err()
	}
}

func (s *Session) rejectAllPending(cause error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for ref, ch := range s.pending {
		ch <- pendingResult{err: cause}
		delete(s.pending, ref)
	}
}
