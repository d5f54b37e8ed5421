// Package restclient adapts a jwtstream into an oauth2.TokenSource and a
// stream of bearer-authenticated *http.Client values.
package restclient

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/supabase-community/supabase-realtime-go/internal/jwtstream"
)

// tokenSource blocks on the next jwtstream item carrying a non-empty
// access token, filtering out error items and empty-token items.
type tokenSource struct {
	items <-chan jwtstream.Item
}

// TokenSource adapts a jwtstream.Item channel into an oauth2.TokenSource.
func TokenSource(items <-chan jwtstream.Item) oauth2.TokenSource {
	return &tokenSource{items: items}
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	for item := range t.items {
		if item.Err != nil || item.Response.AccessToken == "" {
			continue
		}
		tok := &oauth2.Token{
			AccessToken:  item.Response.AccessToken,
			RefreshToken: item.Response.RefreshToken,
			TokenType:    "Bearer",
		}
		if item.Response.ExpiresAt != nil {
			tok.Expiry = time.Unix(*item.Response.ExpiresAt, 0)
		} else if item.Response.ExpiresIn != nil {
			tok.Expiry = time.Now().Add(time.Duration(*item.Response.ExpiresIn) * time.Second)
		}
		return tok, nil
	}
	return nil, jwtstream.ErrStreamClosed
}

// NewClientStream emits a freshly wrapped oauth2.NewClient each time ts
// produces a new token. It is a pure adapter: it owns no state of its
// own beyond the upstream source.
func NewClientStream(ctx context.Context, ts oauth2.TokenSource) <-chan *http.Client {
	out := make(chan *http.Client)
	go func() {
		defer close(out)
		for {
			tok, err := ts.Token()
			if err != nil {
				return
			}
			client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
			select {
			case out <- client:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
