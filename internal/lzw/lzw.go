// Package lzw decodes the variable-width LZW code streams used by GIF.
//
// The decoder has no I/O of its own: input bytes are pulled through a read
// callback and decoded palette indices are pushed through a write callback.
// Codes are packed LSB first.
package lzw

import (
	"errors"
	"fmt"
)

const (
	// CodeLimit is the number of entries of the code table (12 bit codes).
	CodeLimit = 4096
	// StackSize holds the longest prefix chain plus one KwKwK symbol.
	StackSize = CodeLimit + 1

	maxMinCodeWidth = 11
)

var (
	ErrNotInitialized      = errors.New("lzw: decoder not initialized")
	ErrInvalidMinCodeWidth = errors.New("lzw: invalid minimum code width")
	ErrInputExhausted      = errors.New("lzw: input exhausted")
	ErrInvalidCode         = errors.New("lzw: invalid code")
	ErrStackOverflow       = errors.New("lzw: pixel stack overflow")
	ErrOutputRejected      = errors.New("lzw: output rejected")
)

// ReadFunc returns the next input byte, or false if the input is exhausted.
type ReadFunc func() (byte, bool)

// WriteFunc accepts one decoded pixel index. Returning false aborts decoding.
type WriteFunc func(index byte) bool

// Decoder is a GIF style LZW decoder. The zero value is unusable until
// Init is called. A Decoder must not be shared between goroutines.
type Decoder struct {
	codes []uint32 // prefix<<8 | trailing byte
	stack []byte
	sp    int

	initial      bool
	minCodeWidth uint
	clearCode    uint32
	endCode      uint32
	nextCode     uint32
	maxCode      uint32
	codeWidth    uint

	bitsInBuffer uint
	codeBuffer   uint32

	firstByte uint32
	prevCode  uint32
}

func New() *Decoder {
	return &Decoder{}
}

// Init prepares the decoder for a code stream with the given minimum code
// width. The code table and the pixel stack are allocated on first use and
// reused afterwards.
func (d *Decoder) Init(minCodeWidth uint8) error {
	if minCodeWidth == 0 || minCodeWidth > maxMinCodeWidth {
		return fmt.Errorf("%w: %d", ErrInvalidMinCodeWidth, minCodeWidth)
	}
	if d.codes == nil {
		d.codes = make([]uint32, CodeLimit)
	}
	if d.stack == nil {
		d.stack = make([]byte, StackSize)
	}

	d.minCodeWidth = uint(minCodeWidth)
	d.clearCode = 1 << d.minCodeWidth
	d.endCode = d.clearCode + 1
	d.sp = 0
	d.bitsInBuffer = 0
	d.codeBuffer = 0
	d.clear()
	return nil
}

// DeInit releases the code table and the pixel stack.
func (d *Decoder) DeInit() {
	d.codes = nil
	d.stack = nil
	d.sp = 0
}

// Clone returns a decoder with its own copy of the code table and stack.
func (d *Decoder) Clone() *Decoder {
	c := *d
	if d.codes != nil {
		c.codes = make([]uint32, CodeLimit)
		copy(c.codes, d.codes)
	}
	if d.stack != nil {
		c.stack = make([]byte, StackSize)
		copy(c.stack, d.stack)
	}
	return &c
}

// CodeWidth returns the current code width in bits.
func (d *Decoder) CodeWidth() uint { return d.codeWidth }

// NextCode returns the next free code table index.
func (d *Decoder) NextCode() uint32 { return d.nextCode }

// Decode runs until the end code is read. Any failure means the output
// written so far must be discarded.
func (d *Decoder) Decode(read ReadFunc, write WriteFunc) error {
	if d.codes == nil || d.stack == nil {
		return ErrNotInitialized
	}

	for {
		code, err := d.getCode(read)
		if err != nil {
			return err
		}

		switch code {
		case d.endCode:
			return nil
		case d.clearCode:
			d.clear()
		default:
			if err := d.decompress(code, write); err != nil {
				d.sp = 0
				return err
			}
		}
	}
}

func (d *Decoder) clear() {
	d.nextCode = d.endCode + 1
	d.maxCode = 2*d.clearCode - 1
	d.codeWidth = d.minCodeWidth + 1
	d.initial = true
}

func (d *Decoder) getCode(read ReadFunc) (uint32, error) {
	var code uint32
	needed := d.codeWidth

	for needed > 0 {
		if d.bitsInBuffer == 0 {
			b, ok := read()
			if !ok {
				return 0, ErrInputExhausted
			}
			d.codeBuffer = uint32(b)
			d.bitsInBuffer = 8
		}

		n := min(d.bitsInBuffer, needed)
		mask := uint32(1)<<n - 1
		code |= (d.codeBuffer & mask) << (d.codeWidth - needed)
		d.codeBuffer >>= n
		d.bitsInBuffer -= n
		needed -= n
	}
	return code, nil
}

func (d *Decoder) push(b byte) error {
	if d.sp >= len(d.stack) {
		return ErrStackOverflow
	}
	d.stack[d.sp] = b
	d.sp++
	return nil
}

func (d *Decoder) decompress(code uint32, write WriteFunc) error {
	if d.initial {
		if code > d.endCode {
			return fmt.Errorf("%w: %d as first code", ErrInvalidCode, code)
		}
		d.firstByte = code
		d.prevCode = code
		if !write(byte(code)) {
			return ErrOutputRejected
		}
		d.initial = false
		return nil
	}

	inCode := code

	// KwKwK: the code is the one about to be defined.
	if code >= d.nextCode {
		if code != d.nextCode {
			return fmt.Errorf("%w: %d, next code is %d", ErrInvalidCode, code, d.nextCode)
		}
		if err := d.push(byte(d.firstByte)); err != nil {
			return err
		}
		code = d.prevCode
	}

	// Unwind the prefix chain onto the stack.
	for code >= d.clearCode {
		if code >= CodeLimit {
			return fmt.Errorf("%w: %d out of table", ErrInvalidCode, code)
		}
		entry := d.codes[code]
		if err := d.push(byte(entry)); err != nil {
			return err
		}
		code = (entry >> 8) & 0x0FFF
	}
	d.firstByte = code
	if err := d.push(byte(code)); err != nil {
		return err
	}

	for d.sp > 0 {
		d.sp--
		if !write(d.stack[d.sp]) {
			return ErrOutputRejected
		}
	}

	if d.nextCode < CodeLimit {
		d.codes[d.nextCode] = d.prevCode<<8 | code
		d.nextCode++
		if d.nextCode > d.maxCode && d.nextCode < CodeLimit {
			d.maxCode = d.maxCode*2 + 1
			d.codeWidth++
		}
	}
	d.prevCode = inCode
	return nil
}
