package gfx

import (
	"errors"
	"fmt"
	"image"
)

var ErrInvalidSize = errors.New("invalid bitmap size")

// Canvas is anything the display core can paint on: bitmaps and the
// framebuffer of a hardware sink.
type Canvas interface {
	Width() int
	Height() int
	ColorAt(x, y int) Color
	SetColor(x, y int, c Color)
	Fill(c Color)
	DrawBitmap(x, y int, src *Bitmap)
}

// Bitmap is a 2D grid of colors backed by an *image.RGBA, so the
// x/image font drawer and image/draw work on it directly.
type Bitmap struct {
	img *image.RGBA
}

// NewBitmap allocates a black bitmap.
func NewBitmap(width, height int) (*Bitmap, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	b := &Bitmap{img: image.NewRGBA(image.Rect(0, 0, width, height))}
	b.Fill(Black)
	return b, nil
}

func (b *Bitmap) Width() int  { return b.img.Rect.Dx() }
func (b *Bitmap) Height() int { return b.img.Rect.Dy() }

// Image exposes the backing image for drawing libraries.
func (b *Bitmap) Image() *image.RGBA { return b.img }

func (b *Bitmap) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width() && y < b.Height()
}

// ColorAt returns black outside of the bitmap.
func (b *Bitmap) ColorAt(x, y int) Color {
	if !b.inside(x, y) {
		return Black
	}
	i := b.img.PixOffset(x, y)
	p := b.img.Pix[i : i+3 : i+3]
	return Color{R: p[0], G: p[1], B: p[2]}
}

// SetColor ignores coordinates outside of the bitmap.
func (b *Bitmap) SetColor(x, y int, c Color) {
	if !b.inside(x, y) {
		return
	}
	i := b.img.PixOffset(x, y)
	p := b.img.Pix[i : i+4 : i+4]
	p[0], p[1], p[2], p[3] = c.R, c.G, c.B, 255
}

func (b *Bitmap) Fill(c Color) {
	pix := b.img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = c.R
		pix[i+1] = c.G
		pix[i+2] = c.B
		pix[i+3] = 255
	}
}

// DrawBitmap copies src with its top-left corner at (x, y), clipped to b.
func (b *Bitmap) DrawBitmap(x, y int, src *Bitmap) {
	if src == nil {
		return
	}
	dr := image.Rect(x, y, x+src.Width(), y+src.Height()).Intersect(b.img.Rect)
	if dr.Empty() {
		return
	}
	rowLen := dr.Dx() * 4
	for dy := dr.Min.Y; dy < dr.Max.Y; dy++ {
		di := b.img.PixOffset(dr.Min.X, dy)
		si := src.img.PixOffset(dr.Min.X-x, dy-y)
		copy(b.img.Pix[di:di+rowLen], src.img.Pix[si:si+rowLen])
	}
}

// CopyFrom overwrites b with src. Both must have the same size.
func (b *Bitmap) CopyFrom(src *Bitmap) error {
	if src.Width() != b.Width() || src.Height() != b.Height() {
		return fmt.Errorf("%w: %dx%d into %dx%d", ErrInvalidSize, src.Width(), src.Height(), b.Width(), b.Height())
	}
	copy(b.img.Pix, src.img.Pix)
	return nil
}

// Clone returns an independent copy of the backing image.
func (b *Bitmap) Clone() *image.RGBA {
	img := image.NewRGBA(b.img.Rect)
	copy(img.Pix, b.img.Pix)
	return img
}
