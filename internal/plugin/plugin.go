// Package plugin defines what the display manager needs from a content
// plugin.
package plugin

import (
	"sync/atomic"

	"github.com/photonicat/pcat2_slot_display/internal/gfx"
)

// Plugin is a content provider installed into a display slot. All methods
// are called with the display manager's locks held and must not block for
// long.
type Plugin interface {
	// Start is called on install with the size of the framebuffer.
	Start(width, height int)
	// Stop is called on uninstall.
	Stop()
	// Process runs every process tick, whether or not the plugin is visible.
	Process(isNetworkConnected bool)
	// Active is called when the plugin becomes visible.
	Active(fb *gfx.Bitmap)
	Inactive()
	// Update paints the plugin into fb while it is visible.
	Update(fb *gfx.Bitmap)
	IsEnabled() bool
	UID() uint16
	Name() string
}

var lastUID atomic.Uint32

// NextUID hands out process wide unique plugin ids. 0 is never returned.
func NextUID() uint16 {
	for {
		uid := uint16(lastUID.Add(1))
		if uid != 0 {
			return uid
		}
	}
}

// Base carries the bookkeeping every plugin needs. Embed a *Base and
// override what the plugin does.
type Base struct {
	uid     uint16
	name    string
	enabled atomic.Bool
}

// NewBase returns an enabled base with a fresh uid.
func NewBase(name string) *Base {
	b := &Base{uid: NextUID(), name: name}
	b.enabled.Store(true)
	return b
}

func (b *Base) UID() uint16     { return b.uid }
func (b *Base) Name() string    { return b.name }
func (b *Base) IsEnabled() bool { return b.enabled.Load() }

func (b *Base) Enable()  { b.enabled.Store(true) }
func (b *Base) Disable() { b.enabled.Store(false) }

func (b *Base) Start(int, int)     {}
func (b *Base) Stop()              {}
func (b *Base) Process(bool)       {}
func (b *Base) Active(*gfx.Bitmap) {}
func (b *Base) Inactive()          {}
func (b *Base) Update(*gfx.Bitmap) {}
