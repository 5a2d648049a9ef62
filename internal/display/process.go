package display

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/photonicat/pcat2_slot_display/internal/fade"
	"github.com/photonicat/pcat2_slot_display/internal/gfx"
	"github.com/photonicat/pcat2_slot_display/internal/slots"
)

// process is one tick of the process loop.
func (m *Manager) process() {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	m.brightness.Process()

	// A different slot got sticky, it shall be shown. If the selected slot
	// is sticky, rotation stops.
	if sticky := m.slots.StickySlot(); sticky != slots.Invalid {
		if sticky == m.selectedSlot {
			m.slotTimer.stop()
		} else {
			m.requested = m.slots.Plugin(sticky)
		}
	}

	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()

	// The selected slot got disabled, select another one below.
	if m.selected != nil && m.slots.IsDisabled(m.selectedSlot) {
		m.selected.Inactive()
		m.deselect()
	}

	if m.requested != nil {
		m.handleRequest()
	}

	if m.selected != nil && !m.fade.IsRunning() {
		m.checkSelected()
	}

	// The next plugin becomes active once the old content faded out.
	if m.selected == nil && m.fade.State() != fade.FadeOut {
		m.selectNext()
	}

	for i := 0; i < m.slots.MaxSlots(); i++ {
		if p := m.slots.Plugin(slots.ID(i)); p != nil {
			p.Process(m.networkUp)
		}
	}
}

func (m *Manager) handleRequest() {
	req := m.requested

	switch {
	case !req.IsEnabled():
		log.Warn().
			Str("plugin", req.Name()).
			Uint16("uid", req.UID()).
			Uint8("slot", m.slots.SlotIDByPluginUID(req.UID())).
			Msg("requested plugin is disabled")
		m.requested = nil

	case m.selected == nil:
		// Taken over when selecting the next plugin.

	case req == m.selected:
		// Keep it to avoid a fade, but the duration may have changed.
		m.requested = nil
		m.startSlotTimer(m.selectedSlot)

	default:
		m.selected.Inactive()
		m.deselect()
		m.slotTimer.stop()
		m.fade.Start()
	}
}

func (m *Manager) checkSelected() {
	m.selectedSlot = m.slots.SlotIDByPluginUID(m.selected.UID())

	switch {
	case !m.selected.IsEnabled():
		m.selected.Inactive()
		m.deselect()
		m.slotTimer.stop()
		m.fade.Start()

	case m.slotTimer.isTimeout():
		next := m.slots.Next(m.selectedSlot)
		if next == m.selectedSlot {
			m.slotTimer.restart()
			return
		}
		m.selected.Inactive()
		m.deselect()
		m.slotTimer.stop()
		m.fade.Start()
	}
}

func (m *Manager) selectNext() {
	fb := m.fb.Selected()

	var id slots.ID
	if m.requested != nil {
		id = m.slots.SlotIDByPluginUID(m.requested.UID())
		m.requested = nil
	} else {
		id = m.slots.Next(m.lastSlot)
	}

	p := m.slots.Plugin(id)
	if p == nil {
		if fb != nil {
			fb.Fill(gfx.Black)
		}
		m.sink.Clear()
		return
	}

	m.selected = p
	m.selectedSlot = id
	m.lastSlot = id
	if id == m.slots.StickySlot() {
		m.slotTimer.stop()
	} else {
		m.startSlotTimer(id)
	}
	if fb != nil {
		p.Active(fb)
	}
	log.Info().Uint8("slot", id).Str("plugin", p.Name()).Msg("slot now active")
}

// startSlotTimer starts the rotation timer, or stops it for a slot that
// stays forever.
func (m *Manager) startSlotTimer(id slots.ID) {
	if d := m.slots.Duration(id); d > 0 {
		m.slotTimer.start(d)
	} else {
		m.slotTimer.stop()
	}
}

// deselect forgets the selected plugin, keeping its slot as the rotation
// start point. Both mutexes must be held.
func (m *Manager) deselect() {
	if m.selectedSlot != slots.Invalid {
		m.lastSlot = m.selectedSlot
	}
	m.selected = nil
	m.selectedSlot = slots.Invalid
}

// update is one tick of the update loop. It returns the time spent.
func (m *Manager) update() time.Duration {
	start := m.clock.Now()

	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()

	fb := m.fb.Selected()
	if fb == nil {
		return 0
	}
	if m.selected != nil {
		m.selected.Update(fb)
	}
	m.indicators.Update(fb)
	m.fade.Update(m.sink)
	m.sink.Show()

	return m.clock.Since(start)
}
