// Package indicator draws small status glyphs into the corners of the
// display, on top of whatever plugin is visible.
package indicator

import (
	"bytes"
	"fmt"
	"image"
	"math"

	svg "github.com/ajstarks/svgo"
	"github.com/rs/zerolog/log"

	"github.com/photonicat/pcat2_slot_display/internal/gfx"
	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
)

const (
	// IDNetwork shows the signal bars in the top right corner.
	IDNetwork uint8 = 0
	// IDAll addresses every indicator at once.
	IDAll uint8 = 255

	Count  = 4
	margin = 2
)

// Signal bar geometry.
const (
	barWidth     = 5
	barHeight    = 12
	barSpace     = 1
	barCount     = 4
	barMinHeight = 3
)

type indicator struct {
	on    bool
	glyph *image.RGBA
}

// View holds up to Count indicators. Indicator 0 sits in the top right
// corner, 1 top left, 2 bottom right and 3 bottom left. It is safe for
// concurrent use.
type View struct {
	mu         syncutil.Mutex
	indicators [Count]indicator
	strength   int
}

func NewView() *View {
	v := &View{strength: -1}
	v.SetSignal(0)
	dot := dotGlyph()
	for i := 1; i < Count; i++ {
		v.indicators[i].glyph = dot
	}
	return v
}

// SetIndicator switches one indicator, or all of them with IDAll.
func (v *View) SetIndicator(id uint8, on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if id == IDAll {
		for i := range v.indicators {
			v.indicators[i].on = on
		}
		return
	}
	if int(id) < Count {
		v.indicators[id].on = on
	}
}

// IsIndicatorOn reports an indicator's state. With IDAll it is true only if
// every indicator is on.
func (v *View) IsIndicatorOn(id uint8) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if id == IDAll {
		for _, ind := range v.indicators {
			if !ind.on {
				return false
			}
		}
		return true
	}
	if int(id) < Count {
		return v.indicators[id].on
	}
	return false
}

// SetGlyph replaces the image shown for an indicator.
func (v *View) SetGlyph(id uint8, glyph *image.RGBA) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if int(id) < Count && glyph != nil {
		v.indicators[id].glyph = glyph
	}
}

// SetSignal renders the network glyph for a strength between 0 and 1.
func (v *View) SetSignal(strength float64) {
	bars := int(math.Ceil(min(max(strength, 0), 1) * barCount))

	v.mu.Lock()
	defer v.mu.Unlock()
	if bars == v.strength {
		return
	}

	glyph, err := gfx.RasterizeSVG(SignalSVG(bars), 0, 0)
	if err != nil {
		log.Error().Err(err).Msg("indicator: failed to render signal glyph")
		return
	}
	v.strength = bars
	v.indicators[IDNetwork].glyph = glyph
}

// Update draws every switched on indicator onto fb.
func (v *View) Update(fb *gfx.Bitmap) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, ind := range v.indicators {
		if !ind.on || ind.glyph == nil {
			continue
		}
		x, y := v.position(i, fb, ind.glyph)
		if err := gfx.CopyImageAt(fb.Image(), ind.glyph, x, y); err != nil {
			log.Error().Err(err).Int("indicator", i).Msg("indicator: draw failed")
		}
	}
}

func (v *View) position(i int, fb *gfx.Bitmap, glyph *image.RGBA) (int, int) {
	w, h := glyph.Rect.Dx(), glyph.Rect.Dy()
	x, y := margin, margin
	if i%2 == 0 {
		x = fb.Width() - w - margin
	}
	if i >= 2 {
		y = fb.Height() - h - margin
	}
	return x, y
}

// SignalSVG generates the signal bar glyph with the given number of lit
// bars.
func SignalSVG(bars int) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(barWidth*barCount+barSpace*(barCount-1), barHeight+barMinHeight)

	grey := fmt.Sprintf("fill:#%02X%02X%02X", gfx.Grey.R, gfx.Grey.G, gfx.Grey.B)
	for i := 0; i < barCount; i++ {
		style := grey
		if i < bars {
			style = "fill:white"
		}
		canvas.Roundrect(i*(barWidth+barSpace), barHeight/4*(4-i), barWidth, barHeight/4*i+barMinHeight, 2, 2, style)
	}
	canvas.End()
	return buf.Bytes()
}

func dotGlyph() *image.RGBA {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(6, 6)
	canvas.Circle(3, 3, 3, "fill:#FFE500")
	canvas.End()

	img, err := gfx.RasterizeSVG(buf.Bytes(), 0, 0)
	if err != nil {
		log.Error().Err(err).Msg("indicator: failed to render dot glyph")
		return nil
	}
	return img
}
