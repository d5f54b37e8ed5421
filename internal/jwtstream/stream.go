// Package jwtstream is a self-driving sequence of access-token
// responses: an initial password grant followed by pre-expiry refreshes,
// retried on a bounded, fixed interval when the server or network
// misbehaves.
package jwtstream

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/supabase-community/supabase-realtime-go/internal/authtransport"
)

// Item is one observation of the stream: a fresh TokenResponse, or an
// error. A retryable error is followed by another attempt; a
// non-retryable one is the last Item before the stream ends. The attempt
// that finally exhausts the retry counter is never surfaced as an Item;
// the stream simply ends.
type Item struct {
	Response authtransport.TokenResponse
	Err      error
}

// Stream drives one logical actor: at most one auth request in flight,
// consumed through an unbuffered channel so a slow consumer stalls
// further refreshes.
type Stream struct {
	client *authtransport.Client
	creds  authtransport.Credentials
	cfg    authtransport.Config
	logger *logrus.Entry
}

// New constructs a Stream. It performs no I/O; the actual login happens
// lazily on the first Run call.
func New(cfg authtransport.Config, creds authtransport.Credentials, logger *logrus.Entry) *Stream {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Stream{
		client: authtransport.New(cfg),
		creds:  creds,
		cfg:    cfg,
		logger: logger.WithField("component", "jwtstream"),
	}
}

// Run starts the actor goroutine and returns the channel of Items. The
// channel closes once a non-retryable error occurs, the retry counter
// reaches MaxReconnectAttempts without an intervening success, or ctx is
// canceled.
func (s *Stream) Run(ctx context.Context) <-chan Item {
	out := make(chan Item)
	go s.drive(ctx, out)
	return out
}

func (s *Stream) drive(ctx context.Context, out chan<- Item) {
	defer close(out)

	// A constant backoff configured once and reused for its
	// NextBackOff() value on every failure, giving a fixed retry
	// interval rather than an exponential one.
	interval := backoff.NewConstantBackOff(s.cfg.ReconnectInterval)

	creds := s.creds
	attempts := uint8(0)

	for {
		resp, err := s.request(ctx, creds)
		if err != nil {
			if isNonRetryable(err) {
				s.logger.WithError(err).Error("non-retryable error; terminating stream")
				select {
				case out <- Item{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			attempts++
			if attempts >= s.cfg.MaxReconnectAttempts {
				s.logger.WithError(err).Error("max reconnect attempts exceeded; terminating stream")
				return
			}
			s.logger.WithError(err).WithField("attempt", attempts).Warn("auth request failed; retrying after fixed interval")

			select {
			case out <- Item{Err: err}:
			case <-ctx.Done():
				return
			}

			select {
			case <-time.After(interval.NextBackOff()):
			case <-ctx.Done():
				return
			}

			// Retry with whatever grant the caller last attempted: a
			// failed refresh keeps retrying as a refresh rather than
			// falling back to a password grant.
			continue
		}

		attempts = 0
		select {
		case out <- Item{Response: resp}:
		case <-ctx.Done():
			return
		}

		if resp.RefreshToken == "" || resp.ExpiresIn == nil {
			s.logger.Debug("no refresh_token/expires_in on response; ending stream after single item")
			return
		}

		delay := time.Duration(*resp.ExpiresIn) * time.Second / 2
		s.logger.WithField("refresh_in", delay).Debug("scheduling refresh")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		creds = authtransport.Credentials{RefreshToken: resp.RefreshToken}
	}
}

// isNonRetryable reports whether err is a malformed-response or
// bad-configuration failure that retrying cannot fix, as opposed to a
// transient transport or server error.
func isNonRetryable(err error) bool {
	return errors.Is(err, authtransport.ErrProtocol) || errors.Is(err, authtransport.ErrConfig)
}

func (s *Stream) request(ctx context.Context, creds authtransport.Credentials) (authtransport.TokenResponse, error) {
	descriptor := authtransport.TokenGrant(creds)
	return authtransport.Execute[authtransport.TokenResponse](ctx, s.client, descriptor)
}
