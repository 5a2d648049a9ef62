package display

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/photonicat/pcat2_slot_display/internal/fade"
	"github.com/photonicat/pcat2_slot_display/internal/plugin"
	"github.com/photonicat/pcat2_slot_display/internal/slots"
)

// SlotInfo describes one slot for status displays.
type SlotInfo struct {
	ID        slots.ID      `json:"id"`
	PluginUID uint16        `json:"pluginUid,omitempty"`
	Plugin    string        `json:"plugin,omitempty"`
	Locked    bool          `json:"locked"`
	Disabled  bool          `json:"disabled"`
	Sticky    bool          `json:"sticky"`
	Active    bool          `json:"active"`
	Duration  time.Duration `json:"duration"`
}

// InstallPlugin puts p into the given slot, or into the first empty
// unlocked slot with slots.Invalid. It returns the slot id or slots.Invalid.
func (m *Manager) InstallPlugin(p plugin.Plugin, id slots.ID) slots.ID {
	if p == nil {
		return slots.Invalid
	}

	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	if id == slots.Invalid {
		id = m.slots.EmptyUnlockedSlot()
	} else if !m.slots.IsSlotEmptyAndUnlocked(id) {
		id = slots.Invalid
	}

	if id == slots.Invalid || !m.slots.SetPlugin(id, p) {
		log.Error().Str("plugin", p.Name()).Uint16("uid", p.UID()).Msg("couldn't install plugin")
		return slots.Invalid
	}

	p.Start(m.sink.Width(), m.sink.Height())
	log.Info().Str("plugin", p.Name()).Uint16("uid", p.UID()).Uint8("slot", id).Msg("plugin installed")
	return id
}

// UninstallPlugin removes p from its slot and stops it. It fails if p is
// not installed or its slot is locked.
func (m *Manager) UninstallPlugin(p plugin.Plugin) bool {
	if p == nil {
		return false
	}

	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	id := m.slots.SlotIDByPluginUID(p.UID())
	if !m.slots.IsValid(id) || m.slots.IsLocked(id) {
		log.Error().Str("plugin", p.Name()).Uint16("uid", p.UID()).Uint8("slot", id).
			Msg("couldn't remove plugin, not installed or slot locked")
		return false
	}

	m.muUpdate.Lock()
	if m.selected == p {
		p.Inactive()
		m.deselect()
	}
	if m.requested == p {
		m.requested = nil
	}
	m.muUpdate.Unlock()

	p.Stop()
	m.slots.SetPlugin(id, nil)
	log.Info().Str("plugin", p.Name()).Uint16("uid", p.UID()).Uint8("slot", id).Msg("plugin removed")
	return true
}

// MovePluginToSlot moves an installed plugin into an empty unlocked slot.
func (m *Manager) MovePluginToSlot(p plugin.Plugin, id slots.ID) bool {
	if p == nil {
		return false
	}

	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	if !m.slots.IsSlotEmptyAndUnlocked(id) {
		return false
	}
	src := m.slots.SlotIDByPluginUID(p.UID())
	if !m.slots.IsValid(src) || src == id || m.slots.IsLocked(src) {
		return false
	}

	m.slots.SetPlugin(src, nil)
	m.slots.SetPlugin(id, p)

	m.muUpdate.Lock()
	if m.selected == p {
		p.Inactive()
		m.deselect()
	}
	m.muUpdate.Unlock()
	return true
}

func (m *Manager) SlotIDByPluginUID(uid uint16) slots.ID {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.slots.SlotIDByPluginUID(uid)
}

func (m *Manager) PluginInSlot(id slots.ID) plugin.Plugin {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.slots.Plugin(id)
}

func (m *Manager) StickySlot() slots.ID {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.slots.StickySlot()
}

// SetSlotSticky makes a slot sticky, slots.Invalid clears it.
func (m *Manager) SetSlotSticky(id slots.ID) bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	if !m.slots.SetSlotSticky(id) {
		return false
	}
	if id == slots.Invalid {
		log.Info().Msg("sticky flag cleared")
	} else {
		log.Info().Uint8("slot", id).Msg("slot set sticky")
	}
	return true
}

// ClearSticky clears the sticky flag and resumes rotation of the selected
// slot.
func (m *Manager) ClearSticky() {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	m.slots.ClearSticky()
	if m.selectedSlot != slots.Invalid && !m.slotTimer.isRunning() {
		if d := m.slots.Duration(m.selectedSlot); d > 0 {
			m.slotTimer.start(d)
		}
	}
	log.Info().Msg("sticky flag cleared")
}

// ActivateSlot requests a slot to be shown. It fails for invalid, empty or
// disabled slots and while another slot is sticky.
func (m *Manager) ActivateSlot(id slots.ID) bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.activateSlot(id)
}

func (m *Manager) activateSlot(id slots.ID) bool {
	switch {
	case !m.slots.IsValid(id), m.slots.IsDisabled(id), m.slots.IsEmpty(id):
		return false
	case id == m.selectedSlot:
		m.requested = nil
		return true
	case m.slots.StickySlot() != slots.Invalid:
		return false
	default:
		m.requested = m.slots.Plugin(id)
		return true
	}
}

// currentSlot is the selected slot, or during a transition the one before.
func (m *Manager) currentSlot() slots.ID {
	if m.selectedSlot != slots.Invalid {
		return m.selectedSlot
	}
	return m.lastSlot
}

func (m *Manager) ActivateNextSlot() {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	cur := m.currentSlot()
	if next := m.slots.Next(cur); next != cur {
		m.activateSlot(next)
	}
}

func (m *Manager) ActivatePreviousSlot() {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	cur := m.currentSlot()
	if prev := m.slots.Previous(cur); prev != cur {
		m.activateSlot(prev)
	}
}

// SetFadeEffect selects the transition used from the next idle moment on.
// fade.EffectCount cycles to the next effect.
func (m *Manager) SetFadeEffect(effect fade.Effect) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()
	m.fade.SelectEffect(effect)
}

func (m *Manager) FadeEffect() fade.Effect {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()
	return m.fade.Effect()
}

func (m *Manager) LockSlot(id slots.ID) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.slots.Lock(id)
}

func (m *Manager) UnlockSlot(id slots.ID) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.slots.Unlock(id)
}

func (m *Manager) IsSlotLocked(id slots.ID) bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.slots.IsLocked(id)
}

func (m *Manager) EnableSlot(id slots.ID) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.slots.Enable(id)
}

// DisableSlot fails for the sticky slot.
func (m *Manager) DisableSlot(id slots.ID) bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.slots.Disable(id)
}

func (m *Manager) IsSlotDisabled(id slots.ID) bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.slots.IsDisabled(id)
}

func (m *Manager) SlotDuration(id slots.ID) time.Duration {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.slots.Duration(id)
}

// SetSlotDuration changes how long a slot stays visible, 0 is forever. It
// takes effect the next time the slot becomes active.
func (m *Manager) SetSlotDuration(id slots.ID, d time.Duration) bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.slots.SetDuration(id, d)
}

func (m *Manager) MaxSlots() int {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.slots.MaxSlots()
}

// SlotInfos lists the state of every slot.
func (m *Manager) SlotInfos() []SlotInfo {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	infos := make([]SlotInfo, m.slots.MaxSlots())
	for i := range infos {
		id := slots.ID(i)
		info := SlotInfo{
			ID:       id,
			Locked:   m.slots.IsLocked(id),
			Disabled: m.slots.IsDisabled(id),
			Sticky:   m.slots.StickySlot() == id,
			Active:   m.selectedSlot == id,
			Duration: m.slots.Duration(id),
		}
		if p := m.slots.Plugin(id); p != nil {
			info.PluginUID = p.UID()
			info.Plugin = p.Name()
		}
		infos[i] = info
	}
	return infos
}

func (m *Manager) SetNetworkStatus(connected bool) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.networkUp = connected
}

func (m *Manager) DisplayOn() {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()
	m.sink.On()
}

func (m *Manager) DisplayOff() {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()
	m.sink.Off()
}

func (m *Manager) IsDisplayOn() bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()
	return m.sink.IsOn()
}

func (m *Manager) Indicator(id uint8) bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.indicators.IsIndicatorOn(id)
}

func (m *Manager) SetIndicator(id uint8, on bool) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()
	m.indicators.SetIndicator(id, on)
}

func (m *Manager) SetBrightness(level uint8) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.brightness.SetBrightness(level)
}

func (m *Manager) Brightness() uint8 {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.brightness.Brightness()
}

func (m *Manager) SetAutoBrightnessAdjustment(on bool) bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.brightness.Enable(on)
}

func (m *Manager) AutoBrightnessAdjustment() bool {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.brightness.IsEnabled()
}

func (m *Manager) SetBrightnessSoftLimits(minSoft, maxSoft uint8) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.brightness.SetSoftLimits(minSoft, maxSoft)
}

func (m *Manager) BrightnessSoftLimits() (uint8, uint8) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	return m.brightness.SoftLimits()
}
