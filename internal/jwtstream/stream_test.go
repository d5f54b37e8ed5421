package jwtstream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supabase-community/supabase-realtime-go/internal/authtransport"
	"github.com/supabase-community/supabase-realtime-go/internal/jwtstream"
	"github.com/supabase-community/supabase-realtime-go/internal/mockauth"
)

func int64p(v int64) *int64 { return &v }

func newConfig(t *testing.T, srv *mockauth.Server, maxAttempts uint8, interval time.Duration) authtransport.Config {
	t.Helper()
	cfg, err := authtransport.NewConfig("api-key", srv.URL(), maxAttempts, interval)
	require.NoError(t, err)
	return cfg
}

func collect(ctx context.Context, t *testing.T, items <-chan jwtstream.Item, n int) []jwtstream.Item {
	t.Helper()
	var out []jwtstream.Item
	for i := 0; i < n; i++ {
		select {
		case item, ok := <-items:
			if !ok {
				return out
			}
			out = append(out, item)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for item %d", i)
		}
	}
	return out
}

func TestHappyPathPasswordLogin(t *testing.T) {
	srv := mockauth.NewServer()
	defer srv.Close()
	srv.RegisterPassword(authtransport.TokenResponse{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresIn:    int64p(3600),
		User:         &authtransport.UserRecord{Email: "u@e"},
	})

	cfg := newConfig(t, srv, 1, time.Second)
	creds := authtransport.Credentials{Email: "u@e", Password: "pw"}
	s := jwtstream.New(cfg, creds, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	items := s.Run(ctx)

	got := collect(ctx, t, items, 1)
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err)
	assert.Equal(t, "A1", got[0].Response.AccessToken)
	assert.Equal(t, "R1", got[0].Response.RefreshToken)
	require.NotNil(t, got[0].Response.User)
	assert.Equal(t, "u@e", got[0].Response.User.Email)
}

func TestBoundedRetryTerminatesSilently(t *testing.T) {
	srv := mockauth.NewServer()
	defer srv.Close()
	// Every password grant request gets a fresh 500; with maxAttempts=2
	// the stream should emit exactly one error item then end without a
	// second one (the attempt that exhausts the counter is never surfaced).
	for i := 0; i < 5; i++ {
		srv.RegisterStatus("password", 500, authtransport.ErrorResponse{ErrorCode: "server_error"})
	}

	cfg := newConfig(t, srv, 2, 20*time.Millisecond)
	creds := authtransport.Credentials{Email: "u@e", Password: "pw"}
	s := jwtstream.New(cfg, creds, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	items := s.Run(ctx)

	var got []jwtstream.Item
	for item := range items {
		got = append(got, item)
	}

	require.Len(t, got, 1)
	require.Error(t, got[0].Err)
}

func TestRecoveryAfterTransientFailure(t *testing.T) {
	srv := mockauth.NewServer()
	defer srv.Close()
	srv.RegisterStatus("password", 500, authtransport.ErrorResponse{ErrorCode: "server_error"})

	cfg := newConfig(t, srv, 2, 20*time.Millisecond)
	creds := authtransport.Credentials{Email: "u@e", Password: "pw"}
	s := jwtstream.New(cfg, creds, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	items := s.Run(ctx)

	first := <-items
	require.Error(t, first.Err)

	srv.RegisterPassword(authtransport.TokenResponse{AccessToken: "A2", ExpiresIn: int64p(3600)})

	second := <-items
	require.NoError(t, second.Err)
	assert.Equal(t, "A2", second.Response.AccessToken)
}

func TestMalformedResponseTerminatesImmediately(t *testing.T) {
	srv := mockauth.NewServer()
	defer srv.Close()
	// A malformed body is a decode failure, not a transient server error:
	// the stream must end after this one error item regardless of
	// maxAttempts, never retrying it.
	srv.RegisterRaw("password", 200, []byte("{not valid json"))
	srv.RegisterPassword(authtransport.TokenResponse{AccessToken: "should-not-be-seen"})

	cfg := newConfig(t, srv, 5, 20*time.Millisecond)
	creds := authtransport.Credentials{Email: "u@e", Password: "pw"}
	s := jwtstream.New(cfg, creds, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	items := s.Run(ctx)

	var got []jwtstream.Item
	for item := range items {
		got = append(got, item)
	}

	require.Len(t, got, 1)
	require.Error(t, got[0].Err)
}

func TestPreExpiryRefresh(t *testing.T) {
	srv := mockauth.NewServer()
	defer srv.Close()
	srv.RegisterPassword(authtransport.TokenResponse{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: int64p(0)})
	srv.RegisterRefresh(authtransport.TokenResponse{AccessToken: "A2", ExpiresIn: int64p(3600)})

	cfg := newConfig(t, srv, 1, time.Second)
	creds := authtransport.Credentials{Email: "u@e", Password: "pw"}
	s := jwtstream.New(cfg, creds, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	items := s.Run(ctx)

	first := <-items
	require.NoError(t, first.Err)
	assert.Equal(t, "A1", first.Response.AccessToken)

	second := <-items
	require.NoError(t, second.Err)
	assert.Equal(t, "A2", second.Response.AccessToken)
}
