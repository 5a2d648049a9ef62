// Package sink provides the displays the manager can draw on: an in-memory
// one for headless runs and tests, and the photonicat2 LCD panel.
package sink

import (
	"github.com/photonicat/pcat2_slot_display/internal/gfx"
	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
)

// Memory is a display without hardware. Show copies the drawn frame into a
// latched frame and is ready immediately.
type Memory struct {
	*gfx.Bitmap

	mu         syncutil.Mutex
	latched    *gfx.Bitmap
	on         bool
	brightness uint8
	shows      int
}

func NewMemory(width, height int) (*Memory, error) {
	draw, err := gfx.NewBitmap(width, height)
	if err != nil {
		return nil, err
	}
	latched, err := gfx.NewBitmap(width, height)
	if err != nil {
		return nil, err
	}
	return &Memory{Bitmap: draw, latched: latched, on: true}, nil
}

func (m *Memory) Clear() {
	m.Fill(gfx.Black)
}

func (m *Memory) Show() {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Same size by construction.
	_ = m.latched.CopyFrom(m.Bitmap)
	m.shows++
}

func (m *Memory) IsReady() bool {
	return true
}

func (m *Memory) On() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = true
}

func (m *Memory) Off() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = false
}

func (m *Memory) IsOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

func (m *Memory) SetBrightness(level uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brightness = level
}

func (m *Memory) Brightness() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.brightness
}

// Latched returns a copy of the last shown frame.
func (m *Memory) Latched() *gfx.Bitmap {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, _ := gfx.NewBitmap(m.latched.Width(), m.latched.Height())
	_ = b.CopyFrom(m.latched)
	return b
}

// Shows counts the calls to Show.
func (m *Memory) Shows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shows
}
