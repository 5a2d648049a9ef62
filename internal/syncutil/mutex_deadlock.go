//go:build deadlock

// Package syncutil provides the mutexes used by the display core. Build
// with -tags=deadlock to swap in go-deadlock's lock order checking.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = true

func init() {
	// The update loop runs every few ms, so anything held this long is stuck.
	deadlock.Opts.DeadlockTimeout = 5 * time.Second
}

type Mutex struct {
	deadlock.Mutex
}

type RWMutex struct {
	deadlock.RWMutex
}
