package realtime

import "time"

// ticker abstracts time.Ticker so heartbeat cadence tests can substitute a
// fake, deterministically stepped clock without the heartbeatLoop code
// depending on real time.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

var newTicker = func(d time.Duration) ticker { return realTicker{t: time.NewTicker(d)} }
