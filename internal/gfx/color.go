package gfx

import "image/color"

// Color is a 24 bit RGB pixel value. It satisfies color.Color and is
// always fully opaque.
type Color struct {
	R, G, B uint8
}

var (
	Black  = Color{0, 0, 0}
	White  = Color{255, 255, 255}
	Yellow = Color{255, 229, 0}
	Red    = Color{226, 72, 38}
	Grey   = Color{98, 116, 130}
	Green  = Color{70, 235, 145}
)

// RGB builds a color from its components.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// FromColor converts any color.Color, dropping alpha.
func FromColor(c color.Color) Color {
	if cc, ok := c.(Color); ok {
		return cc
	}
	r, g, b, _ := c.RGBA()
	return Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

func (c Color) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	return r, g, b, 0xffff
}

// ToRGBA returns the opaque color.RGBA form.
func (c Color) ToRGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// Intensity scales the color by level/255. 255 keeps it, 0 gives black.
func (c Color) Intensity(level uint8) Color {
	l := uint16(level)
	return Color{
		R: uint8(uint16(c.R) * l / 255),
		G: uint8(uint16(c.G) * l / 255),
		B: uint8(uint16(c.B) * l / 255),
	}
}
