package location

import (
	"time"

	"github.com/benbjohnson/clock"

	"eta/internal/session"
)

// Throttle rate-limits fixes with a trailing-edge window: the first fix
// opens a window, later fixes replace the pending one, and the latest fix is
// released when the window closes. No fix, no window.
//
// A Throttle is driven by a single goroutine: Offer fixes, select on C, and
// call Flush when C fires.
type Throttle struct {
	clock   clock.Clock
	window  time.Duration
	timer   *clock.Timer
	pending session.Location
	has     bool
}

func NewThrottle(c clock.Clock, window time.Duration) *Throttle {
	return &Throttle{clock: c, window: window}
}

// Offer records a fix, opening a window if none is open.
func (t *Throttle) Offer(loc session.Location) {
	t.pending = loc
	t.has = true
	if t.timer == nil {
		t.timer = t.clock.Timer(t.window)
	}
}

// C fires when the open window closes. It is nil while no window is open.
func (t *Throttle) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}
	return t.timer.C
}

// Flush closes the window and returns its latest fix.
func (t *Throttle) Flush() (session.Location, bool) {
	t.timer = nil
	loc, ok := t.pending, t.has
	t.pending = session.Location{}
	t.has = false
	return loc, ok
}

// Stop discards the open window and its pending fix.
func (t *Throttle) Stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = session.Location{}
	t.has = false
}
