package restclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supabase-community/supabase-realtime-go/internal/authtransport"
	"github.com/supabase-community/supabase-realtime-go/internal/jwtstream"
	"github.com/supabase-community/supabase-realtime-go/internal/restclient"
)

func TestTokenSourceFiltersEmptyAndErrorItems(t *testing.T) {
	items := make(chan jwtstream.Item, 3)
	items <- jwtstream.Item{Err: assertError{}}
	items <- jwtstream.Item{Response: authtransport.TokenResponse{}}
	items <- jwtstream.Item{Response: authtransport.TokenResponse{AccessToken: "A1", RefreshToken: "R1"}}
	close(items)

	ts := restclient.TokenSource(items)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "A1", tok.AccessToken)
	assert.Equal(t, "R1", tok.RefreshToken)
}

func TestTokenSourceReturnsErrorOnClosedEmptyStream(t *testing.T) {
	items := make(chan jwtstream.Item)
	close(items)

	ts := restclient.TokenSource(items)
	_, err := ts.Token()
	require.ErrorIs(t, err, jwtstream.ErrStreamClosed)
}

func TestNewClientStreamEmitsOneClientPerToken(t *testing.T) {
	items := make(chan jwtstream.Item, 2)
	items <- jwtstream.Item{Response: authtransport.TokenResponse{AccessToken: "A1"}}
	items <- jwtstream.Item{Response: authtransport.TokenResponse{AccessToken: "A2"}}
	close(items)

	ts := restclient.TokenSource(items)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	clients := restclient.NewClientStream(ctx, ts)

	first := <-clients
	require.NotNil(t, first)
	second := <-clients
	require.NotNil(t, second)

	_, ok := <-clients
	assert.False(t, ok)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
