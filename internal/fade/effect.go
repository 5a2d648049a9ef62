package fade

import "github.com/photonicat/pcat2_slot_display/internal/gfx"

const (
	// LinearStep is the intensity change per update. It must divide 256.
	LinearStep = 16
	// MoveSteps is the number of updates a slide needs for one half of a
	// transition, as long as the buffer is at least that many pixels long.
	MoveSteps = 16
)

// linearFade dims the previous frame to black, then raises the selected
// frame from black to full intensity.
type linearFade struct {
	updates int
}

func (f *linearFade) init() {
	f.updates = 0
}

func (f *linearFade) fadeOut(dst gfx.Canvas, prev, _ *gfx.Bitmap) bool {
	f.updates++
	level := 256 - f.updates*LinearStep
	drawDimmed(dst, prev, clampLevel(level))

	if f.updates*LinearStep >= 256 {
		f.updates = 0
		return true
	}
	return false
}

func (f *linearFade) fadeIn(dst gfx.Canvas, _, next *gfx.Bitmap) bool {
	f.updates++
	level := f.updates * LinearStep
	drawDimmed(dst, next, clampLevel(level))

	if level >= 256 {
		f.updates = 0
		return true
	}
	return false
}

func clampLevel(level int) uint8 {
	switch {
	case level <= 0:
		return 0
	case level >= 255:
		return 255
	default:
		return uint8(level)
	}
}

func drawDimmed(dst gfx.Canvas, src *gfx.Bitmap, level uint8) {
	if level == 255 {
		dst.DrawBitmap(0, 0, src)
		return
	}
	w := min(dst.Width(), src.Width())
	h := min(dst.Height(), src.Height())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetColor(x, y, src.ColorAt(x, y).Intensity(level))
		}
	}
}

// moveFade slides the previous frame out towards negative x (or y) and the
// selected frame in from the opposite edge.
type moveFade struct {
	vertical bool
	offset   int
	in       bool
}

func (f *moveFade) init() {
	f.offset = 0
	f.in = false
}

func (f *moveFade) length(b *gfx.Bitmap) int {
	if f.vertical {
		return b.Height()
	}
	return b.Width()
}

func (f *moveFade) step(length int) int {
	return max(1, length/MoveSteps)
}

func (f *moveFade) draw(dst gfx.Canvas, src *gfx.Bitmap, offset int) {
	dst.Fill(gfx.Black)
	if f.vertical {
		dst.DrawBitmap(0, offset, src)
	} else {
		dst.DrawBitmap(offset, 0, src)
	}
}

func (f *moveFade) fadeOut(dst gfx.Canvas, prev, _ *gfx.Bitmap) bool {
	length := f.length(prev)
	f.offset = min(length, f.offset+f.step(length))
	f.draw(dst, prev, -f.offset)

	return f.offset >= length
}

func (f *moveFade) fadeIn(dst gfx.Canvas, _, next *gfx.Bitmap) bool {
	length := f.length(next)
	if !f.in {
		f.in = true
		f.offset = length
	}
	f.offset = max(0, f.offset-f.step(length))
	f.draw(dst, next, f.offset)

	return f.offset == 0
}
