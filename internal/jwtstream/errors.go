package jwtstream

import "errors"

// ErrStreamClosed is returned by adapters (restclient.TokenSource) when
// the underlying Item channel closes before producing another usable
// access token.
var ErrStreamClosed = errors.New("jwtstream: stream closed")
