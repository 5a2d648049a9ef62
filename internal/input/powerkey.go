// Package input turns power key presses into slot changes and backlight
// wake ups.
package input

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/photonicat/pcat2_slot_display/internal/brightness"
)

const (
	DefaultDevice   = "rk805 pwrkey"
	DefaultDebounce = 500 * time.Millisecond
	retryDelay      = 100 * time.Millisecond
)

var ErrDeviceNotFound = errors.New("input: device not found")

type Pager interface {
	ActivateNextSlot()
}

type Waker interface {
	Touch()
	State() brightness.State
}

// PowerKey pages to the next slot when the key is pressed while the
// backlight is fully on. Any press wakes the backlight. A release after a
// long press counts as another press.
type PowerKey struct {
	clock    clockwork.Clock
	pager    Pager
	waker    Waker
	debounce time.Duration

	lastPress time.Time
}

func NewPowerKey(clock clockwork.Clock, pager Pager, waker Waker, debounce time.Duration) *PowerKey {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PowerKey{clock: clock, pager: pager, waker: waker, debounce: debounce}
}

// HandleEvent processes one input event. It reports whether the event
// paged.
func (k *PowerKey) HandleEvent(ev *evdev.InputEvent) bool {
	if ev.Type != evdev.EV_KEY || ev.Code != evdev.KEY_POWER {
		return false
	}

	now := k.clock.Now()
	switch ev.Value {
	case 1:
		log.Debug().Msg("POWER pressed")
		k.lastPress = now
	case 0:
		if now.Sub(k.lastPress) <= k.debounce {
			return false
		}
		log.Debug().Msg("POWER released")
	default:
		return false
	}

	paged := false
	if k.waker.State() == brightness.StateActive {
		k.pager.ActivateNextSlot()
		paged = true
	}
	k.waker.Touch()
	return paged
}

// FindDevice returns the event device path with the given name.
func FindDevice(name string) (string, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return "", fmt.Errorf("failed to list input devices: %w", err)
	}
	for _, p := range paths {
		if p.Name == name {
			return p.Path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
}

// Run reads the named device until ctx is done.
func (k *PowerKey) Run(ctx context.Context, name string) error {
	devPath, err := FindDevice(name)
	if err != nil {
		return err
	}
	dev, err := evdev.Open(devPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", devPath, err)
	}
	if err := dev.Grab(); err != nil {
		log.Warn().Err(err).Str("path", devPath).Msg("failed to grab input device")
	}
	log.Info().Str("path", devPath).Str("name", name).Msg("using input device")

	// Closing the device unblocks ReadOne.
	stop := context.AfterFunc(ctx, func() {
		_ = dev.Ungrab()
		_ = dev.Close()
	})
	defer stop()

	for {
		ev, err := dev.ReadOne()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Error().Err(err).Msg("input read error")
			select {
			case <-ctx.Done():
				return nil
			case <-k.clock.After(retryDelay):
			}
			continue
		}
		k.HandleEvent(ev)
	}
}
