package realtime

import (
	"time"

	"github.com/rickgao/hotel-realtime/internal/clock"
)

// pendingTimer holds at most one scheduled callback for a scope. Every
// stop or reschedule bumps gen so a callback that was already in flight can
// tell it has been superseded.
type pendingTimer struct {
	t   clock.Timer
	gen uint64
}

// schedule replaces any pending callback with f after d.
func (p *pendingTimer) schedule(c clock.Clock, d time.Duration, f func(gen uint64)) {
	p.stop()
	gen := p.gen
	p.t = c.AfterFunc(d, func() { f(gen) })
}

// stop cancels the pending callback, if any.
func (p *pendingTimer) stop() {
	if p.t != nil {
		p.t.Stop()
		p.t = nil
	}
	p.gen++
}

// claim reports whether gen is the live callback and, if so, marks it fired.
// Must be called with the manager lock held.
func (p *pendingTimer) claim(gen uint64) bool {
	if p.t == nil || p.gen != gen {
		return false
	}
	p.t = nil
	return true
}
