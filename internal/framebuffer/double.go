// Package framebuffer holds the ping-pong pair of bitmaps the display
// manager renders into.
package framebuffer

import (
	"fmt"

	"github.com/photonicat/pcat2_slot_display/internal/gfx"
)

const count = 2

// Double owns two equally sized bitmaps. One is selected (the render
// target), the other is the previous, fully composited frame. Swapping only
// toggles the index.
type Double struct {
	buffers  [count]*gfx.Bitmap
	selected int
}

// Create allocates both buffers. Calling it again releases the old pair.
func (d *Double) Create(width, height int) error {
	d.Release()
	for i := range d.buffers {
		b, err := gfx.NewBitmap(width, height)
		if err != nil {
			d.Release()
			return fmt.Errorf("create framebuffer %d: %w", i, err)
		}
		d.buffers[i] = b
	}
	return nil
}

func (d *Double) Release() {
	for i := range d.buffers {
		d.buffers[i] = nil
	}
	d.selected = 0
}

func (d *Double) IsCreated() bool {
	return d.buffers[0] != nil
}

// Selected returns the current render target, nil before Create.
func (d *Double) Selected() *gfx.Bitmap {
	return d.buffers[d.selected]
}

// Previous returns the buffer that was selected before the last swap.
func (d *Double) Previous() *gfx.Bitmap {
	return d.buffers[(d.selected+1)%count]
}

func (d *Double) SelectNext() {
	d.selected = (d.selected + 1) % count
}
