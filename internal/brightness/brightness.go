// Package brightness controls the display backlight: the user brightness,
// soft and hard limits, and automatic dimming when nobody touched the device
// for a while.
package brightness

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
)

// Backlight is the part of the display sink the controller drives.
type Backlight interface {
	SetBrightness(level uint8)
}

type State int

const (
	StateActive State = iota
	StateFadeIn
	StateFadeOut
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateFadeIn:
		return "FADE_IN"
	case StateFadeOut:
		return "FADE_OUT"
	case StateIdle:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// Timing configures the automatic dimming.
type Timing struct {
	IdleTimeout time.Duration
	FadeIn      time.Duration
	FadeOut     time.Duration
}

var DefaultTiming = Timing{
	IdleTimeout: 60 * time.Second,
	FadeIn:      500 * time.Millisecond,
	FadeOut:     3 * time.Second,
}

// Ctrl is safe for concurrent use. Process is expected to be called
// periodically by the display manager.
type Ctrl struct {
	mu     syncutil.Mutex
	clock  clockwork.Clock
	timing Timing

	backlight Backlight
	minHard   uint8
	maxHard   uint8
	minSoft   uint8
	maxSoft   uint8

	brightness uint8
	auto       bool

	lastActivity time.Time
	dimmed       bool
	state        State
	applied      int
}

func New(clock clockwork.Clock, timing Timing) *Ctrl {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ctrl{
		clock:   clock,
		timing:  timing,
		maxHard: 255,
		maxSoft: 255,
		applied: -1,
	}
}

// Init binds the backlight and sets the hard limits. The soft limits are
// reset to the hard limits.
func (c *Ctrl) Init(backlight Backlight, minHard, maxHard uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if minHard > maxHard {
		minHard, maxHard = maxHard, minHard
	}
	c.backlight = backlight
	c.minHard, c.maxHard = minHard, maxHard
	c.minSoft, c.maxSoft = minHard, maxHard
	c.brightness = maxHard
	c.lastActivity = c.clock.Now()
	c.dimmed = false
	c.state = StateActive
	c.applied = -1
}

func (c *Ctrl) SetBrightness(level uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brightness = c.clampHard(level)
}

func (c *Ctrl) Brightness() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brightness
}

// Enable switches automatic dimming on or off.
func (c *Ctrl) Enable(on bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on && !c.auto {
		c.lastActivity = c.clock.Now()
		c.dimmed = false
	}
	c.auto = on
	return true
}

func (c *Ctrl) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto
}

// SetSoftLimits narrows the range the backlight may use. Values outside the
// hard limits are clamped to them.
func (c *Ctrl) SetSoftLimits(minSoft, maxSoft uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if minSoft > maxSoft {
		minSoft, maxSoft = maxSoft, minSoft
	}
	c.minSoft = c.clampHard(minSoft)
	c.maxSoft = c.clampHard(maxSoft)
}

func (c *Ctrl) SoftLimits() (uint8, uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minSoft, c.maxSoft
}

// Touch records user activity, waking the backlight up.
func (c *Ctrl) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = c.clock.Now()
}

func (c *Ctrl) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Level is the value last written to the backlight, -1 if none yet.
func (c *Ctrl) Level() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Process computes the backlight level and writes it if it changed.
func (c *Ctrl) Process() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backlight == nil {
		return
	}

	target := c.clampSoft(c.brightness)
	level, state := int(target), StateActive
	if c.auto {
		level, state = c.dim(target)
	}

	if state != c.state {
		log.Debug().Msgf("brightness: state changed from %s to %s", c.state, state)
		c.state = state
	}
	if level != c.applied {
		c.applied = level
		c.backlight.SetBrightness(uint8(level))
	}
}

func (c *Ctrl) dim(target uint8) (int, State) {
	idle := c.clock.Since(c.lastActivity)
	low := int(c.minSoft)
	high := int(target)
	t := c.timing

	switch {
	case c.dimmed && idle < t.FadeIn:
		return low + scale(high-low, idle, t.FadeIn), StateFadeIn
	case idle < t.IdleTimeout:
		c.dimmed = false
		return high, StateActive
	case idle < t.IdleTimeout+t.FadeOut:
		c.dimmed = true
		return high - scale(high-low, idle-t.IdleTimeout, t.FadeOut), StateFadeOut
	default:
		c.dimmed = true
		return low, StateIdle
	}
}

func scale(span int, part, whole time.Duration) int {
	if whole <= 0 {
		return span
	}
	return int(int64(span) * int64(part) / int64(whole))
}

func (c *Ctrl) clampHard(level uint8) uint8 {
	return min(max(level, c.minHard), c.maxHard)
}

func (c *Ctrl) clampSoft(level uint8) uint8 {
	return min(max(level, c.minSoft), c.maxSoft)
}
