// Package fade composites the double framebuffer onto a canvas, optionally
// running a transition when the visible content changes.
package fade

import (
	"github.com/photonicat/pcat2_slot_display/internal/framebuffer"
	"github.com/photonicat/pcat2_slot_display/internal/gfx"
)

type State int

const (
	Idle State = iota
	FadeIn
	FadeOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FadeIn:
		return "fade-in"
	case FadeOut:
		return "fade-out"
	default:
		return "unknown"
	}
}

type Effect int

const (
	None Effect = iota
	Linear
	MoveX
	MoveY
	// EffectCount passed to SelectEffect selects the next effect in turn.
	EffectCount
)

var effectNames = [...]string{"none", "linear", "moveX", "moveY"}

func (e Effect) String() string {
	if e < 0 || e >= EffectCount {
		return "unknown"
	}
	return effectNames[e]
}

// ParseEffect resolves an effect by name.
func ParseEffect(name string) (Effect, bool) {
	for i, n := range effectNames {
		if n == name {
			return Effect(i), true
		}
	}
	return None, false
}

// Controller drives the transition state machine. It is not safe for
// concurrent use; the display manager serializes access.
type Controller struct {
	fb *framebuffer.Double

	state     State
	effect    Effect
	requested Effect

	linear linearFade
	moveX  moveFade
	moveY  moveFade
}

// NewController starts with the linear effect, idle.
func NewController(fb *framebuffer.Double) *Controller {
	return &Controller{
		fb:        fb,
		state:     Idle,
		effect:    Linear,
		requested: Linear,
		moveY:     moveFade{vertical: true},
	}
}

// SelectEffect requests an effect. It is swapped in the next time the
// controller is idle, never during a transition.
func (c *Controller) SelectEffect(effect Effect) {
	if effect < None || effect >= EffectCount {
		c.SelectNextEffect()
		return
	}
	c.requested = effect
}

func (c *Controller) SelectNextEffect() {
	c.requested = (c.requested + 1) % EffectCount
}

// Effect returns the requested effect, which may not be active yet.
func (c *Controller) Effect() Effect {
	return c.requested
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) IsRunning() bool {
	return c.state != Idle
}

// Start swaps the framebuffers and begins fading the old content out. The
// newly selected buffer is cleared for the next plugin.
func (c *Controller) Start() {
	c.fb.SelectNext()
	if sel := c.fb.Selected(); sel != nil {
		sel.Fill(gfx.Black)
	}
	c.state = FadeOut

	switch c.effect {
	case Linear:
		c.linear.init()
	case MoveX:
		c.moveX.init()
	case MoveY:
		c.moveY.init()
	}
}

// Abort drops any transition in flight.
func (c *Controller) Abort() {
	c.state = Idle
	c.changeEffectOnDemand()
}

// Update draws one step onto dst.
func (c *Controller) Update(dst gfx.Canvas) {
	selected := c.fb.Selected()
	if selected == nil {
		return
	}

	if c.effect == None {
		dst.DrawBitmap(0, 0, selected)
		c.state = Idle
	} else {
		prev := c.fb.Previous()

		switch c.state {
		case Idle:
			dst.DrawBitmap(0, 0, selected)
		case FadeIn:
			if c.fadeIn(dst, prev, selected) {
				c.state = Idle
			}
		case FadeOut:
			if c.fadeOut(dst, prev, selected) {
				c.state = FadeIn
			}
		}
	}

	if c.state == Idle {
		c.changeEffectOnDemand()
	}
}

func (c *Controller) fadeOut(dst gfx.Canvas, prev, next *gfx.Bitmap) bool {
	switch c.effect {
	case Linear:
		return c.linear.fadeOut(dst, prev, next)
	case MoveX:
		return c.moveX.fadeOut(dst, prev, next)
	case MoveY:
		return c.moveY.fadeOut(dst, prev, next)
	default:
		return true
	}
}

func (c *Controller) fadeIn(dst gfx.Canvas, prev, next *gfx.Bitmap) bool {
	switch c.effect {
	case Linear:
		return c.linear.fadeIn(dst, prev, next)
	case MoveX:
		return c.moveX.fadeIn(dst, prev, next)
	case MoveY:
		return c.moveY.fadeIn(dst, prev, next)
	default:
		return true
	}
}

func (c *Controller) changeEffectOnDemand() {
	if c.effect != c.requested {
		c.effect = c.requested
	}
}
