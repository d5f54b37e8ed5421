package realtime

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-realtime-go/internal/jwtstream"
	"github.com/supabase-community/supabase-realtime-go/internal/protocol"
)

// readLoop owns all socket reads and every state mutation derived from
// inbound frames (presence, channel lifecycle); it is the only goroutine
// that writes those fields.
func (s *Session) readLoop(ctx context.Context) error {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}

		env, err := protocol.Decode(data)
		if err != nil {
			s.logger.WithError(err).Warn("dropping malformed frame")
			continue
		}

		s.dispatch(env)

		select {
		case s.messages <- Result[protocol.Envelope]{Value: env}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) dispatch(env protocol.Envelope) {
	switch p := env.Payload.(type) {
	case protocol.PhxReply:
		if env.Ref != "" && env.Ref == s.currentJoinRef() {
			if p.Ok() {
				s.setState(StateJoined)
			} else {
				s.setState(StateErrored)
			}
		}
		var replyErr error
		if !p.Ok() {
			replyErr = &ChannelError{Ref: env.Ref, Response: p.Response}
		}
		s.resolvePending(env.Ref, p, replyErr)
	case protocol.PhxError:
		s.resolvePending(env.Ref, protocol.PhxReply{}, &ChannelError{Ref: env.Ref})
		s.setState(StateErrored)
	case protocol.PhxClose:
		s.setState(StateClosed)
	case protocol.PresenceState:
		s.replacePresence(p.State)
	case protocol.PresenceDiff:
		s.applyPresenceDiff(p)
	}
}

func (s *Session) resolvePending(ref string, reply protocol.PhxReply, err error) {
	if ref == "" {
		return
	}
	s.pendingMu.Lock()
	ch, ok := s.pending[ref]
	if ok {
		delete(s.pending, ref)
	}
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	ch <- pendingResult{reply: reply, err: err}
}

func (s *Session) replacePresence(next map[string][]protocol.PresenceEntry) {
	s.presenceMu.Lock()
	s.presence = next
	s.presenceMu.Unlock()
}

// applyPresenceDiff applies an apply-once delta: leave keys/refs are
// removed first, then joins are merged in. Insertion order within a key
// is not significant.
func (s *Session) applyPresenceDiff(diff protocol.PresenceDiff) {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	for key, leaving := range diff.Leaves {
		remaining := s.presence[key][:0:0]
		leavingRefs := make(map[string]struct{}, len(leaving))
		for _, e := range leaving {
			leavingRefs[e.PhxRef] = struct{}{}
		}
		for _, e := range s.presence[key] {
			if _, gone := leavingRefs[e.PhxRef]; !gone {
				remaining = append(remaining, e)
			}
		}
		if len(remaining) == 0 {
			delete(s.presence, key)
		} else {
			s.presence[key] = remaining
		}
	}

	for key, joining := range diff.Joins {
		s.presence[key] = append(s.presence[key], joining...)
	}
}

// writeLoop owns all socket writes, serialized through three internal
// sources with a strict, non-starving priority: JWT token pushes first,
// then heartbeat ticks, then queued outbound commands.
func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case tok := <-s.tokenPush:
			if err := s.sendAccessToken(tok); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-s.heartbeatTick:
			if err := s.sendHeartbeat(); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case tok := <-s.tokenPush:
			if err := s.sendAccessToken(tok); err != nil {
				return err
			}
		case <-s.heartbeatTick:
			if err := s.sendHeartbeat(); err != nil {
				return err
			}
		case frame := <-s.outbound:
			if err := s.conn.WriteMessage(frame); err != nil {
				return err
			}
			s.queueSem.Release(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) sendAccessToken(token string) error {
	env := protocol.Envelope{Topic: s.topic, Event: protocol.EventAccessToken, Payload: protocol.AccessTokenPush{AccessToken: token}}
	raw, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("realtime: encode access_token: %w", err)
	}
	return s.conn.WriteMessage(raw)
}

func (s *Session) sendHeartbeat() error {
	env := protocol.Envelope{Topic: protocol.PhoenixTopic, Event: protocol.EventHeartbeat, Payload: protocol.Heartbeat{AccessToken: s.loadToken()}}
	raw, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("realtime: encode heartbeat: %w", err)
	}
	return s.conn.WriteMessage(raw)
}

// jwtLoop consumes the side-input JWT stream, updates the cached token
// snapshot, and hands fresh non-empty tokens to the writer for an
// access_token push. It is the only goroutine permitted to write currentToken.
func (s *Session) jwtLoop(ctx context.Context, tokens <-chan jwtstream.Item) error {
	for {
		select {
		case item, ok := <-tokens:
			if !ok {
				return nil
			}
			if item.Err != nil {
				s.logger.WithError(item.Err).Warn("jwt stream reported an error; keeping last known token")
				continue
			}
			if item.Response.AccessToken == "" {
				continue
			}
			s.currentToken.Store(item.Response.AccessToken)
			select {
			case s.tokenPush <- item.Response.AccessToken:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// heartbeatLoop ticks at cfg.HeartbeatInterval, signaling the writer
// rather than writing the socket itself so the writer can stamp the
// heartbeat with whatever token is freshest at send time.
func (s *Session) heartbeatLoop(ctx context.Context) error {
	ticker := newTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			select {
			case s.heartbeatTick <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
