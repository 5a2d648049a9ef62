// Package gif decodes GIF87a/GIF89a files, including animations, on top of
// the lzw package. It is used for animated plugin icons.
package gif

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"time"

	"github.com/photonicat/pcat2_slot_display/internal/lzw"
	"github.com/spf13/afero"
)

const (
	blockExtension  = 0x21
	blockImage      = 0x2C
	blockTrailer    = 0x3B
	extGraphicCtrl  = 0xF9
	extApplication  = 0xFF
	flagColorTable  = 0x80
	flagInterlace   = 0x40
	flagTransparent = 0x01
)

// Disposal methods of the graphic control extension.
const (
	DisposalNone       = 0
	DisposalKeep       = 1
	DisposalBackground = 2
	DisposalPrevious   = 3
)

var (
	ErrInvalidHeader = errors.New("gif: invalid header")
	ErrNoColorTable  = errors.New("gif: no color table")
	ErrBadColorIndex = errors.New("gif: color index out of palette")
	ErrTooMuchData   = errors.New("gif: too much image data")
	ErrNotEnoughData = errors.New("gif: not enough image data")
	ErrInvalidImage  = errors.New("gif: image outside of logical screen")
	ErrNoFrames      = errors.New("gif: no frames")
	ErrUnknownBlock  = errors.New("gif: unknown block")
	ErrBadExtension  = errors.New("gif: malformed extension")
)

// Frame is one decoded image of an animation.
type Frame struct {
	// Paletted is the raw frame as stored in the file.
	Paletted *image.Paletted
	// Image is the frame composited on the logical screen.
	Image    *image.RGBA
	Delay    time.Duration
	Disposal byte
}

type Animation struct {
	Width     int
	Height    int
	LoopCount int
	Frames    []Frame
}

// Load reads the whole file into memory and decodes it.
func Load(fs afero.Fs, name string) (*Animation, error) {
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, err
	}
	anim, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return anim, nil
}

type decoder struct {
	r   *bufio.Reader
	lzw *lzw.Decoder

	anim        *Animation
	globalPal   color.Palette
	canvas      *image.RGBA
	delay       time.Duration
	disposal    byte
	transparent int
	tmp         [256]byte
}

// Decode parses a complete GIF stream. A corrupt frame fails the whole
// decode, nothing partial is returned.
func Decode(r io.Reader) (*Animation, error) {
	d := &decoder{
		r:           bufio.NewReader(r),
		lzw:         lzw.New(),
		anim:        &Animation{},
		transparent: -1,
	}
	defer d.lzw.DeInit()

	if err := d.readHeader(); err != nil {
		return nil, err
	}

	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("gif: reading block: %w", err)
		}
		switch b {
		case blockExtension:
			if err := d.readExtension(); err != nil {
				return nil, err
			}
		case blockImage:
			if err := d.readImage(); err != nil {
				return nil, err
			}
		case blockTrailer:
			if len(d.anim.Frames) == 0 {
				return nil, ErrNoFrames
			}
			return d.anim, nil
		default:
			return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownBlock, b)
		}
	}
}

func (d *decoder) readFull(n int) ([]byte, error) {
	if _, err := io.ReadFull(d.r, d.tmp[:n]); err != nil {
		return nil, err
	}
	return d.tmp[:n], nil
}

func (d *decoder) readHeader() error {
	b, err := d.readFull(13)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if sig := string(b[:6]); sig != "GIF87a" && sig != "GIF89a" {
		return fmt.Errorf("%w: %q", ErrInvalidHeader, sig)
	}

	d.anim.Width = int(b[6]) | int(b[7])<<8
	d.anim.Height = int(b[8]) | int(b[9])<<8
	packed := b[10]
	if d.anim.Width == 0 || d.anim.Height == 0 {
		return fmt.Errorf("%w: logical screen %dx%d", ErrInvalidHeader, d.anim.Width, d.anim.Height)
	}
	d.canvas = image.NewRGBA(image.Rect(0, 0, d.anim.Width, d.anim.Height))

	if packed&flagColorTable != 0 {
		d.globalPal, err = d.readColorTable(packed)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) readColorTable(packed byte) (color.Palette, error) {
	n := 1 << (1 + uint(packed&0x07))
	raw := make([]byte, 3*n)
	if _, err := io.ReadFull(d.r, raw); err != nil {
		return nil, fmt.Errorf("gif: reading color table: %w", err)
	}
	pal := make(color.Palette, n)
	for i := range pal {
		pal[i] = color.RGBA{R: raw[3*i], G: raw[3*i+1], B: raw[3*i+2], A: 0xff}
	}
	return pal, nil
}

func (d *decoder) readExtension() error {
	label, err := d.r.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadExtension, err)
	}

	switch label {
	case extGraphicCtrl:
		b, err := d.readFull(6)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadExtension, err)
		}
		if b[0] != 4 || b[5] != 0 {
			return fmt.Errorf("%w: graphic control block size %d", ErrBadExtension, b[0])
		}
		d.disposal = (b[1] >> 2) & 0x07
		d.delay = time.Duration(int(b[2])|int(b[3])<<8) * 10 * time.Millisecond
		if b[1]&flagTransparent != 0 {
			d.transparent = int(b[4])
		} else {
			d.transparent = -1
		}
		return nil
	case extApplication:
		n, err := d.r.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadExtension, err)
		}
		b, err := d.readFull(int(n))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadExtension, err)
		}
		if string(b) == "NETSCAPE2.0" {
			return d.readLoopCount()
		}
		return d.skipBlocks()
	default:
		return d.skipBlocks()
	}
}

func (d *decoder) readLoopCount() error {
	for {
		n, err := d.r.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadExtension, err)
		}
		if n == 0 {
			return nil
		}
		b, err := d.readFull(int(n))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadExtension, err)
		}
		if n == 3 && b[0] == 1 {
			d.anim.LoopCount = int(b[1]) | int(b[2])<<8
		}
	}
}

func (d *decoder) skipBlocks() error {
	for {
		n, err := d.r.ReadByte()
		if err != nil {
			return fmt.Errorf("gif: skipping blocks: %w", err)
		}
		if n == 0 {
			return nil
		}
		if _, err := d.r.Discard(int(n)); err != nil {
			return fmt.Errorf("gif: skipping blocks: %w", err)
		}
	}
}

func (d *decoder) readImage() error {
	b, err := d.readFull(9)
	if err != nil {
		return fmt.Errorf("gif: reading image descriptor: %w", err)
	}
	left := int(b[0]) | int(b[1])<<8
	top := int(b[2]) | int(b[3])<<8
	width := int(b[4]) | int(b[5])<<8
	height := int(b[6]) | int(b[7])<<8
	packed := b[8]

	rect := image.Rect(left, top, left+width, top+height)
	if width == 0 || height == 0 || !rect.In(d.canvas.Rect) {
		return fmt.Errorf("%w: %v", ErrInvalidImage, rect)
	}

	pal := d.globalPal
	if packed&flagColorTable != 0 {
		if pal, err = d.readColorTable(packed); err != nil {
			return err
		}
	}
	if pal == nil {
		return ErrNoColorTable
	}

	if d.transparent >= 0 && d.transparent < len(pal) {
		// Palette is shared with the global table, copy before editing.
		pal = append(color.Palette(nil), pal...)
		pal[d.transparent] = color.RGBA{}
	}

	frame := image.NewPaletted(rect, pal)
	if err := d.readPixels(frame); err != nil {
		return err
	}
	if packed&flagInterlace != 0 {
		deinterlace(frame)
	}

	d.compose(frame)
	d.transparent = -1
	d.delay = 0
	d.disposal = DisposalNone
	return nil
}

func (d *decoder) readPixels(frame *image.Paletted) error {
	minCodeWidth, err := d.r.ReadByte()
	if err != nil {
		return fmt.Errorf("gif: reading code width: %w", err)
	}
	if err := d.lzw.Init(minCodeWidth); err != nil {
		return err
	}

	var block [255]byte
	blockLen, blockPos := 0, 0
	dataEnd := false

	read := func() (byte, bool) {
		for blockPos >= blockLen {
			if dataEnd {
				return 0, false
			}
			n, err := d.r.ReadByte()
			if err != nil || n == 0 {
				dataEnd = true
				return 0, false
			}
			if _, err := io.ReadFull(d.r, block[:n]); err != nil {
				dataEnd = true
				return 0, false
			}
			blockLen, blockPos = int(n), 0
		}
		blockPos++
		return block[blockPos-1], true
	}

	pos := 0
	palLen := len(frame.Palette)
	var badIndex bool
	write := func(index byte) bool {
		if pos >= len(frame.Pix) {
			return false
		}
		if int(index) >= palLen {
			badIndex = true
			return false
		}
		frame.Pix[pos] = index
		pos++
		return true
	}

	err = d.lzw.Decode(read, write)
	if errors.Is(err, lzw.ErrInputExhausted) {
		// Encoders may leave out the end code. The pixel count decides.
		err = nil
	}
	if err != nil {
		switch {
		case badIndex:
			return ErrBadColorIndex
		case errors.Is(err, lzw.ErrOutputRejected):
			return ErrTooMuchData
		default:
			return fmt.Errorf("gif: %w", err)
		}
	}
	if pos != len(frame.Pix) {
		return fmt.Errorf("%w: %d of %d pixels", ErrNotEnoughData, pos, len(frame.Pix))
	}

	if !dataEnd {
		return d.skipBlocks()
	}
	return nil
}

func (d *decoder) compose(frame *image.Paletted) {
	var saved *image.RGBA
	if d.disposal == DisposalPrevious {
		saved = image.NewRGBA(d.canvas.Rect)
		copy(saved.Pix, d.canvas.Pix)
	}

	r := frame.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			idx := frame.ColorIndexAt(x, y)
			if int(idx) == d.transparent {
				continue
			}
			d.canvas.Set(x, y, frame.Palette[idx])
		}
	}

	composed := image.NewRGBA(d.canvas.Rect)
	copy(composed.Pix, d.canvas.Pix)
	d.anim.Frames = append(d.anim.Frames, Frame{
		Paletted: frame,
		Image:    composed,
		Delay:    d.delay,
		Disposal: d.disposal,
	})

	switch d.disposal {
	case DisposalBackground:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				d.canvas.SetRGBA(x, y, color.RGBA{})
			}
		}
	case DisposalPrevious:
		d.canvas = saved
	}
}

// deinterlace reorders rows stored in the four GIF interlace passes.
func deinterlace(m *image.Paletted) {
	h := m.Rect.Dy()
	w := m.Stride
	src := make([]byte, len(m.Pix))
	copy(src, m.Pix)

	row := 0
	for _, pass := range [4]struct{ start, step int }{{0, 8}, {4, 8}, {2, 4}, {1, 2}} {
		for y := pass.start; y < h; y += pass.step {
			copy(m.Pix[y*w:(y+1)*w], src[row*w:(row+1)*w])
			row++
		}
	}
}
