package gfx

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/llgcode/draw2d/draw2dimg"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// DrawText draws a string onto img at (posX, posY) where posY is the top of
// the text box. With center set, posX is the horizontal center.
// It returns the bottom right corner of the drawn text.
func DrawText(img *image.RGBA, text string, posX, posY int, face font.Face, clr color.Color, center bool) (finishX, finishY int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: face,
	}
	metrics := face.Metrics()
	textWidth := d.MeasureString(text).Round()

	x := posX
	if center {
		x = posX - textWidth/2
	}
	y := posY + metrics.Ascent.Round()

	d.Dot = fixed.P(x, y)
	d.DrawString(text)

	finishX = x + textWidth
	finishY = posY + metrics.Ascent.Round() + metrics.Descent.Round()
	return finishX, finishY
}

// MeasureText returns the advance width of text in pixels.
func MeasureText(text string, face font.Face) int {
	return font.MeasureString(face, text).Round()
}

// CopyImageAt alpha blends src onto dst with the top-left corner at (x0, y0).
// Fully transparent pixels are skipped, pixels outside dst are clipped.
func CopyImageAt(dst, src *image.RGBA, x0, y0 int) error {
	if dst == nil || src == nil {
		return errors.New("nil image provided")
	}

	sb := src.Bounds()
	for y := 0; y < sb.Dy(); y++ {
		for x := 0; x < sb.Dx(); x++ {
			sample := src.RGBAAt(sb.Min.X+x, sb.Min.Y+y)
			if sample.A == 0 {
				continue
			}
			p := image.Pt(x0+x, y0+y)
			if !p.In(dst.Rect) {
				continue
			}
			if sample.A == 255 {
				dst.SetRGBA(p.X, p.Y, sample)
				continue
			}

			d := dst.RGBAAt(p.X, p.Y)
			a := uint16(sample.A)
			invA := uint16(255 - sample.A)
			dst.SetRGBA(p.X, p.Y, color.RGBA{
				R: uint8((uint16(sample.R)*a + uint16(d.R)*invA) / 255),
				G: uint8((uint16(sample.G)*a + uint16(d.G)*invA) / 255),
				B: uint8((uint16(sample.B)*a + uint16(d.B)*invA) / 255),
				A: uint8(uint16(sample.A) + (uint16(d.A)*invA)/255),
			})
		}
	}
	return nil
}

// FillRoundedRect fills a rectangle with rounded corners of radius r.
// draw2d takes arc angles in radians.
func FillRoundedRect(img *image.RGBA, x, y, w, h, r float64, c color.Color) {
	gc := draw2dimg.NewGraphicContext(img)
	gc.SetFillColor(c)
	gc.MoveTo(x+r, y)
	gc.LineTo(x+w-r, y)
	gc.ArcTo(x+w-r, y+r, r, r, -math.Pi/2, math.Pi/2)
	gc.LineTo(x+w, y+h-r)
	gc.ArcTo(x+w-r, y+h-r, r, r, 0, math.Pi/2)
	gc.LineTo(x+r, y+h)
	gc.ArcTo(x+r, y+h-r, r, r, math.Pi/2, math.Pi/2)
	gc.LineTo(x, y+r)
	gc.ArcTo(x+r, y+r, r, r, math.Pi, math.Pi/2)
	gc.Close()
	gc.Fill()
}
