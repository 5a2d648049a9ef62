package display

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// slotTimer measures how long the selected slot has been visible.
type slotTimer struct {
	clock    clockwork.Clock
	started  time.Time
	duration time.Duration
	running  bool
}

func (t *slotTimer) start(d time.Duration) {
	t.started = t.clock.Now()
	t.duration = d
	t.running = true
}

func (t *slotTimer) restart() {
	t.started = t.clock.Now()
}

func (t *slotTimer) stop() {
	t.running = false
}

func (t *slotTimer) isRunning() bool {
	return t.running
}

func (t *slotTimer) isTimeout() bool {
	return t.running && t.clock.Since(t.started) >= t.duration
}
