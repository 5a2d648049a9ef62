// Package slots is the fixed size registry of display slots.
package slots

import (
	"errors"
	"fmt"
	"time"

	"github.com/photonicat/pcat2_slot_display/internal/plugin"
)

type ID = uint8

const (
	// Invalid marks "no slot".
	Invalid ID = 255
	// MaxCount is the largest number of slots a list may have.
	MaxCount = 254
)

var ErrInvalidCount = errors.New("slots: invalid slot count")

type slot struct {
	plugin   plugin.Plugin
	locked   bool
	disabled bool
	duration time.Duration
}

// List maps slot ids to plugins and their scheduling flags. At most one slot
// is sticky. A plugin uid is installed in at most one slot. List is not safe
// for concurrent use.
type List struct {
	slots  []slot
	sticky ID
}

// New creates a list of count empty, unlocked, enabled slots with infinite
// duration.
func New(count int) (*List, error) {
	if count < 1 || count > MaxCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	return &List{
		slots:  make([]slot, count),
		sticky: Invalid,
	}, nil
}

func (l *List) MaxSlots() int {
	return len(l.slots)
}

func (l *List) IsValid(id ID) bool {
	return int(id) < len(l.slots)
}

func (l *List) get(id ID) *slot {
	if !l.IsValid(id) {
		return nil
	}
	return &l.slots[id]
}

// EmptyUnlockedSlot returns the first slot with no plugin that is not
// locked, or Invalid.
func (l *List) EmptyUnlockedSlot() ID {
	for i := range l.slots {
		if l.IsSlotEmptyAndUnlocked(ID(i)) {
			return ID(i)
		}
	}
	return Invalid
}

func (l *List) IsSlotEmptyAndUnlocked(id ID) bool {
	s := l.get(id)
	return s != nil && s.plugin == nil && !s.locked
}

func (l *List) IsEmpty(id ID) bool {
	s := l.get(id)
	return s == nil || s.plugin == nil
}

// SetPlugin attaches p to the slot, or detaches with nil. It fails for an
// invalid id and when p's uid is already installed in another slot.
// Detaching the sticky slot's plugin clears the sticky flag.
func (l *List) SetPlugin(id ID, p plugin.Plugin) bool {
	s := l.get(id)
	if s == nil {
		return false
	}
	if p != nil {
		if other := l.SlotIDByPluginUID(p.UID()); other != Invalid && other != id {
			return false
		}
	} else if l.sticky == id {
		l.sticky = Invalid
	}
	s.plugin = p
	return true
}

// Plugin returns the plugin of a slot, nil if empty or invalid.
func (l *List) Plugin(id ID) plugin.Plugin {
	if s := l.get(id); s != nil {
		return s.plugin
	}
	return nil
}

func (l *List) SlotIDByPluginUID(uid uint16) ID {
	for i := range l.slots {
		if p := l.slots[i].plugin; p != nil && p.UID() == uid {
			return ID(i)
		}
	}
	return Invalid
}

// SetSlotSticky makes id the only sticky slot. Invalid clears it. An empty
// or disabled slot can not become sticky.
func (l *List) SetSlotSticky(id ID) bool {
	if id == Invalid {
		l.sticky = Invalid
		return true
	}
	s := l.get(id)
	if s == nil || s.plugin == nil || s.disabled {
		return false
	}
	l.sticky = id
	return true
}

func (l *List) StickySlot() ID {
	return l.sticky
}

func (l *List) ClearSticky() {
	l.sticky = Invalid
}

func (l *List) Lock(id ID) {
	if s := l.get(id); s != nil {
		s.locked = true
	}
}

func (l *List) Unlock(id ID) {
	if s := l.get(id); s != nil {
		s.locked = false
	}
}

func (l *List) IsLocked(id ID) bool {
	s := l.get(id)
	return s != nil && s.locked
}

func (l *List) Enable(id ID) {
	if s := l.get(id); s != nil {
		s.disabled = false
	}
}

// Disable excludes the slot from rotation. The sticky slot can not be
// disabled.
func (l *List) Disable(id ID) bool {
	s := l.get(id)
	if s == nil || id == l.sticky {
		return false
	}
	s.disabled = true
	return true
}

func (l *List) IsDisabled(id ID) bool {
	s := l.get(id)
	return s != nil && s.disabled
}

// Duration is how long the slot stays visible, 0 means forever.
func (l *List) Duration(id ID) time.Duration {
	if s := l.get(id); s != nil {
		return s.duration
	}
	return 0
}

func (l *List) SetDuration(id ID, d time.Duration) bool {
	s := l.get(id)
	if s == nil || d < 0 {
		return false
	}
	s.duration = d
	return true
}

// IsEligible reports whether rotation may show the slot: enabled, occupied
// and its plugin enabled.
func (l *List) IsEligible(id ID) bool {
	s := l.get(id)
	return s != nil && !s.disabled && s.plugin != nil && s.plugin.IsEnabled()
}

// Next returns the first eligible slot after id, wrapping around. It may
// return id itself after a full lap, or Invalid if nothing is eligible. For
// an invalid id the scan starts at slot 0.
func (l *List) Next(id ID) ID {
	n := len(l.slots)
	start := int(id)
	if !l.IsValid(id) {
		start = n - 1
	}
	for i := 1; i <= n; i++ {
		candidate := ID((start + i) % n)
		if l.IsEligible(candidate) {
			return candidate
		}
	}
	return Invalid
}

// Previous is Next in the other direction. For an invalid id the scan
// starts at the last slot.
func (l *List) Previous(id ID) ID {
	n := len(l.slots)
	start := int(id)
	if !l.IsValid(id) {
		start = 0
	}
	for i := 1; i <= n; i++ {
		candidate := ID((start - i + n) % n)
		if l.IsEligible(candidate) {
			return candidate
		}
	}
	return Invalid
}
