//go:build !deadlock

// Package syncutil provides the mutexes used by the display core. Build
// with -tags=deadlock to swap in go-deadlock's lock order checking.
package syncutil

import "sync"

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = false

type Mutex struct {
	sync.Mutex
}

type RWMutex struct {
	sync.RWMutex
}
