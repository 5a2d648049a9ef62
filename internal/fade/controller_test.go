package fade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonicat/pcat2_slot_display/internal/framebuffer"
	"github.com/photonicat/pcat2_slot_display/internal/gfx"
)

func newTestController(t *testing.T, w, h int) (*Controller, *framebuffer.Double, *gfx.Bitmap) {
	t.Helper()
	fb := &framebuffer.Double{}
	require.NoError(t, fb.Create(w, h))
	dst, err := gfx.NewBitmap(w, h)
	require.NoError(t, err)
	return NewController(fb), fb, dst
}

// activate applies a requested effect by letting the idle controller draw once.
func activate(c *Controller, dst gfx.Canvas, effect Effect) {
	c.SelectEffect(effect)
	c.Update(dst)
}

// run counts updates until idle and records every state seen after an update.
func run(t *testing.T, c *Controller, dst gfx.Canvas) (int, []State) {
	t.Helper()
	var states []State
	for i := 0; i < 10000; i++ {
		c.Update(dst)
		states = append(states, c.State())
		if c.State() == Idle {
			return i + 1, states
		}
	}
	t.Fatal("transition never finished")
	return 0, nil
}

func assertOrder(t *testing.T, states []State) {
	t.Helper()
	seenIn := false
	for i, s := range states {
		switch s {
		case FadeOut:
			assert.False(t, seenIn, "fade-out after fade-in at update %d", i)
		case FadeIn:
			seenIn = true
		case Idle:
			assert.Equal(t, len(states)-1, i, "idle before the end")
		}
	}
	assert.True(t, seenIn, "fade-in skipped")
}

func TestNoneIsIdleAfterOneUpdate(t *testing.T) {
	t.Parallel()

	c, fb, dst := newTestController(t, 8, 8)
	activate(c, dst, None)

	c.Start()
	assert.True(t, c.IsRunning())
	assert.Equal(t, FadeOut, c.State())

	fb.Selected().Fill(gfx.Green)
	c.Update(dst)
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, gfx.Green, dst.ColorAt(3, 3))
}

func TestTransitionUpdateCounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		effect Effect
		w, h   int
		want   int
	}{
		{effect: Linear, w: 10, h: 4, want: 2 * 256 / LinearStep},
		{effect: MoveX, w: 172, h: 4, want: 2 * 18},
		{effect: MoveX, w: 5, h: 4, want: 2 * 5},
		{effect: MoveY, w: 4, h: 320, want: 2 * 16},
		{effect: MoveY, w: 4, h: 33, want: 2 * 17},
	}
	for _, tt := range tests {
		t.Run(tt.effect.String(), func(t *testing.T) {
			t.Parallel()

			c, _, dst := newTestController(t, tt.w, tt.h)
			activate(c, dst, tt.effect)

			c.Start()
			n, states := run(t, c, dst)
			assert.Equal(t, tt.want, n)
			assertOrder(t, states)

			// A second transition takes just as long.
			c.Start()
			n, _ = run(t, c, dst)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestLinearDimsPreviousThenBrightensSelected(t *testing.T) {
	t.Parallel()

	c, fb, dst := newTestController(t, 2, 2)
	activate(c, dst, Linear)

	fb.Selected().Fill(gfx.White)
	c.Start()
	fb.Selected().Fill(gfx.Yellow)

	c.Update(dst)
	assert.Equal(t, gfx.White.Intensity(240), dst.ColorAt(0, 0))

	for c.State() == FadeOut {
		c.Update(dst)
	}
	assert.Equal(t, gfx.Black, dst.ColorAt(1, 1))

	c.Update(dst)
	assert.Equal(t, gfx.Yellow.Intensity(LinearStep), dst.ColorAt(0, 0))

	for c.IsRunning() {
		c.Update(dst)
	}
	assert.Equal(t, gfx.Yellow, dst.ColorAt(1, 0))
}

func TestMoveXShiftsContent(t *testing.T) {
	t.Parallel()

	c, fb, dst := newTestController(t, 32, 1)
	activate(c, dst, MoveX)

	prev := fb.Selected()
	prev.SetColor(2, 0, gfx.Red)
	c.Start()

	// 32 / MoveSteps = 2 pixels per update.
	c.Update(dst)
	assert.Equal(t, gfx.Red, dst.ColorAt(0, 0))
	assert.Equal(t, gfx.Black, dst.ColorAt(31, 0))

	for c.State() == FadeOut {
		c.Update(dst)
	}
	fb.Selected().SetColor(0, 0, gfx.Green)
	c.Update(dst)
	assert.Equal(t, gfx.Green, dst.ColorAt(30, 0))
}

func TestEffectSwapsOnlyWhenIdle(t *testing.T) {
	t.Parallel()

	c, _, dst := newTestController(t, 16, 16)
	activate(c, dst, Linear)

	c.Start()
	c.Update(dst)
	c.SelectEffect(None)
	assert.Equal(t, None, c.Effect())

	// Still fading with the linear effect.
	c.Update(dst)
	assert.Equal(t, FadeOut, c.State())

	n, _ := run(t, c, dst)
	assert.Equal(t, 2*256/LinearStep-2, n)

	c.Start()
	c.Update(dst)
	assert.Equal(t, Idle, c.State())
}

func TestSelectEffectCycles(t *testing.T) {
	t.Parallel()

	c := NewController(&framebuffer.Double{})
	assert.Equal(t, Linear, c.Effect())

	c.SelectEffect(EffectCount)
	assert.Equal(t, MoveX, c.Effect())
	c.SelectNextEffect()
	assert.Equal(t, MoveY, c.Effect())
	c.SelectNextEffect()
	assert.Equal(t, None, c.Effect())
}

func TestAbortDropsTransition(t *testing.T) {
	t.Parallel()

	c, _, dst := newTestController(t, 8, 8)
	activate(c, dst, MoveY)
	c.Start()
	c.Update(dst)
	c.Abort()
	assert.False(t, c.IsRunning())

	c.Start()
	n, _ := run(t, c, dst)
	assert.Equal(t, 2*8, n)
}

func TestUpdateWithoutBuffersIsNoop(t *testing.T) {
	t.Parallel()

	c := NewController(&framebuffer.Double{})
	dst, err := gfx.NewBitmap(2, 2)
	require.NoError(t, err)
	c.Update(dst)
	assert.Equal(t, Idle, c.State())
}

func TestParseEffect(t *testing.T) {
	t.Parallel()

	e, ok := ParseEffect("moveY")
	assert.True(t, ok)
	assert.Equal(t, MoveY, e)

	_, ok = ParseEffect("sparkle")
	assert.False(t, ok)
}
