package sink

import (
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
)

const (
	DefaultBacklightPath = "/sys/class/backlight/backlight/brightness"
	// DefaultBacklightOffDelay keeps the backlight at its lowest level for a
	// while before switching it off completely.
	DefaultBacklightOffDelay = 5 * time.Second
)

// Backlight writes a 0-100 brightness to a sysfs backlight file.
type Backlight struct {
	mu       syncutil.Mutex
	fs       afero.Fs
	path     string
	clock    clockwork.Clock
	offDelay time.Duration
	last     int
	offTimer clockwork.Timer
}

func NewBacklight(fs afero.Fs, path string, clock clockwork.Clock, offDelay time.Duration) *Backlight {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Backlight{
		fs:       fs,
		path:     path,
		clock:    clock,
		offDelay: offDelay,
		last:     -1,
	}
}

// Set clamps percent to 0-100. A zero first dims to 1 and switches off after
// the off delay, unless another value was set meanwhile.
func (b *Backlight) Set(percent int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	percent = min(max(percent, 0), 100)
	if percent == b.last {
		return
	}
	b.last = percent

	if b.offTimer != nil {
		b.offTimer.Stop()
		b.offTimer = nil
	}

	phys := percent
	if percent == 0 {
		phys = 1
	}
	b.write(phys)

	if percent == 0 {
		b.offTimer = b.clock.AfterFunc(b.offDelay, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.last == 0 {
				b.write(0)
			}
		})
	}
}

func (b *Backlight) write(level int) {
	err := afero.WriteFile(b.fs, b.path, []byte(strconv.Itoa(level)), 0o644)
	if err != nil {
		log.Error().Err(err).Str("path", b.path).Msg("backlight write error")
		return
	}
	log.Trace().Int("level", level).Msg("physical backlight")
}

// Percent converts a 0-255 level to 0-100, rounding up so only 0 is off.
func Percent(level uint8) int {
	return (int(level)*100 + 254) / 255
}
