// Package display schedules content plugins into display slots and
// composites the visible one onto the display sink.
//
// Two loops run concurrently. The process loop decides which plugin is
// visible and lets every installed plugin do its background work. The
// faster update loop lets the visible plugin paint, draws the indicators on
// top and pushes the result through the fade controller to the sink.
//
// Locking: every public method takes the interface mutex. Anything touching
// the framebuffers, the fade controller, the selected plugin or the sink
// also takes the update mutex, always after the interface mutex. Locked
// methods never call each other; they share unexported cores instead.
package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/photonicat/pcat2_slot_display/internal/brightness"
	"github.com/photonicat/pcat2_slot_display/internal/fade"
	"github.com/photonicat/pcat2_slot_display/internal/framebuffer"
	"github.com/photonicat/pcat2_slot_display/internal/gfx"
	"github.com/photonicat/pcat2_slot_display/internal/indicator"
	"github.com/photonicat/pcat2_slot_display/internal/plugin"
	"github.com/photonicat/pcat2_slot_display/internal/slots"
	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
)

var ErrAlreadyRunning = errors.New("display manager already running")

// Sink is the physical display. Only the update loop calls Show.
type Sink interface {
	gfx.Canvas
	Clear()
	// Show latches the drawn frame.
	Show()
	// IsReady reports whether the last Show has completed.
	IsReady() bool
	On()
	Off()
	IsOn() bool
	SetBrightness(level uint8)
}

type BrightnessController interface {
	Init(backlight brightness.Backlight, minHard, maxHard uint8)
	Process()
	SetBrightness(level uint8)
	Brightness() uint8
	Enable(on bool) bool
	IsEnabled() bool
	SetSoftLimits(minSoft, maxSoft uint8)
	SoftLimits() (uint8, uint8)
}

type IndicatorView interface {
	Update(fb *gfx.Bitmap)
	SetIndicator(id uint8, on bool)
	IsIndicatorOn(id uint8) bool
}

type Config struct {
	MaxSlots      int
	ProcessPeriod time.Duration
	UpdatePeriod  time.Duration
	// Brightness is applied on Begin, within MinBrightness and MaxBrightness.
	Brightness       uint8
	MinBrightness    uint8
	MaxBrightness    uint8
	FadeEffect       fade.Effect
	StatisticsPeriod time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxSlots:         8,
		ProcessPeriod:    100 * time.Millisecond,
		UpdatePeriod:     20 * time.Millisecond,
		Brightness:       127,
		MinBrightness:    2,
		MaxBrightness:    255,
		FadeEffect:       fade.Linear,
		StatisticsPeriod: 4 * time.Second,
	}
}

// MaxLoopTime bounds how long the update loop waits for the sink.
func (c Config) MaxLoopTime() time.Duration {
	return c.UpdatePeriod * 7 / 10
}

// Options carries the optional collaborators. Nil fields get defaults.
type Options struct {
	Clock      clockwork.Clock
	Brightness BrightnessController
	Indicators IndicatorView
}

const readyPollInterval = time.Millisecond

type Manager struct {
	cfg        Config
	clock      clockwork.Clock
	sink       Sink
	brightness BrightnessController
	indicators IndicatorView

	muInterf syncutil.Mutex
	muUpdate syncutil.Mutex

	slots        *slots.List
	fb           framebuffer.Double
	fade         *fade.Controller
	selectedSlot slots.ID
	lastSlot     slots.ID
	selected     plugin.Plugin
	requested    plugin.Plugin
	slotTimer    slotTimer
	networkUp    bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	muStats   syncutil.Mutex
	stats     statistics
	lastStats Statistics
}

// New creates a manager with an empty slot list. It fails if the slot list
// can not be created.
func New(cfg Config, sink Sink, opts Options) (*Manager, error) {
	list, err := slots.New(cfg.MaxSlots)
	if err != nil {
		return nil, fmt.Errorf("create slot list: %w", err)
	}
	if cfg.ProcessPeriod <= 0 || cfg.UpdatePeriod <= 0 {
		return nil, fmt.Errorf("invalid loop periods: process %s, update %s", cfg.ProcessPeriod, cfg.UpdatePeriod)
	}
	if cfg.StatisticsPeriod <= 0 {
		cfg.StatisticsPeriod = DefaultConfig().StatisticsPeriod
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	bc := opts.Brightness
	if bc == nil {
		bc = brightness.New(clock, brightness.DefaultTiming)
	}
	iv := opts.Indicators
	if iv == nil {
		iv = indicator.NewView()
	}

	m := &Manager{
		cfg:          cfg,
		clock:        clock,
		sink:         sink,
		brightness:   bc,
		indicators:   iv,
		slots:        list,
		selectedSlot: slots.Invalid,
		lastSlot:     slots.Invalid,
		slotTimer:    slotTimer{clock: clock},
	}
	m.fade = fade.NewController(&m.fb)
	return m, nil
}

// Begin allocates the framebuffers and starts both loops. The loops stop
// when ctx is cancelled or End is called.
func (m *Manager) Begin(ctx context.Context) error {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}
	if err := m.setup(); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(2)
	go m.processLoop(loopCtx)
	go m.updateLoop(loopCtx)

	log.Info().Int("slots", m.slots.MaxSlots()).Msg("display manager is up")
	return nil
}

// setup prepares brightness, fade effect and framebuffers. The interface
// mutex must be held.
func (m *Manager) setup() error {
	m.brightness.Init(m.sink, m.cfg.MinBrightness, m.cfg.MaxBrightness)
	m.brightness.SetBrightness(m.cfg.Brightness)

	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()

	m.fade.SelectEffect(m.cfg.FadeEffect)
	if err := m.fb.Create(m.sink.Width(), m.sink.Height()); err != nil {
		log.Error().Err(err).Msg("couldn't create double framebuffer")
		return fmt.Errorf("create double framebuffer: %w", err)
	}
	return nil
}

// End stops both loops, waits for them, drops any transition in flight and
// releases the framebuffers. Installed plugins stay installed.
func (m *Manager) End() {
	m.muInterf.Lock()
	if !m.running {
		m.muInterf.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.muInterf.Unlock()

	m.wg.Wait()
	m.teardown()
	log.Info().Msg("display manager is down")
}

func (m *Manager) teardown() {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()

	if m.selected != nil {
		m.selected.Inactive()
		m.deselect()
	}
	m.requested = nil
	m.slotTimer.stop()
	m.fade.Abort()
	m.fb.Release()
}

func (m *Manager) processLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := m.clock.NewTicker(m.cfg.ProcessPeriod)
	defer ticker.Stop()

	log.Debug().Msg("process loop is up")
	for {
		select {
		case <-ticker.Chan():
			m.process()
		case <-ctx.Done():
			log.Debug().Msg("process loop is down")
			return
		}
	}
}

func (m *Manager) updateLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := m.clock.NewTicker(m.cfg.UpdatePeriod)
	defer ticker.Stop()

	statsStarted := m.clock.Now()
	lastUpdate := m.clock.Now()

	log.Debug().Msg("update loop is up")
	for {
		select {
		case <-ticker.Chan():
			now := m.clock.Now()
			m.recordRefresh(now.Sub(lastUpdate))
			lastUpdate = now

			processing := m.update()
			waited, slipped := m.waitReady(ctx)
			m.recordUpdate(processing, waited, slipped)

			if m.clock.Since(statsStarted) >= m.cfg.StatisticsPeriod {
				m.rollStatistics()
				statsStarted = m.clock.Now()
			}
		case <-ctx.Done():
			log.Debug().Msg("update loop is down")
			return
		}
	}
}

// waitReady polls the sink until it finished the last Show, at most
// MaxLoopTime. It reports how long it waited and whether it gave up.
func (m *Manager) waitReady(ctx context.Context) (time.Duration, bool) {
	start := m.clock.Now()
	maxWait := m.cfg.MaxLoopTime()
	for {
		m.muUpdate.Lock()
		ready := m.sink.IsReady()
		m.muUpdate.Unlock()
		if ready {
			return m.clock.Since(start), false
		}
		waited := m.clock.Since(start)
		if waited >= maxWait {
			return waited, true
		}
		select {
		case <-m.clock.After(readyPollInterval):
		case <-ctx.Done():
			return m.clock.Since(start), true
		}
	}
}

func (m *Manager) recordRefresh(d time.Duration) {
	m.muStats.Lock()
	defer m.muStats.Unlock()
	m.stats.refreshPeriod.update(d)
}

func (m *Manager) recordUpdate(processing, waited time.Duration, slipped bool) {
	m.muStats.Lock()
	defer m.muStats.Unlock()
	m.stats.pluginProcessing.update(processing)
	m.stats.displayUpdate.update(waited)
	m.stats.total.update(processing + waited)
	if slipped {
		m.stats.readySlips++
	}
}

func (m *Manager) rollStatistics() {
	m.muStats.Lock()
	snap := m.stats.snapshot()
	m.lastStats = snap
	m.stats = statistics{}
	m.muStats.Unlock()

	log.Debug().Object("stats", snap).Msg("display update statistics")
}

// Statistics returns the last completed statistics window, or the running
// one if no window completed yet.
func (m *Manager) Statistics() Statistics {
	m.muStats.Lock()
	defer m.muStats.Unlock()
	if m.lastStats == (Statistics{}) {
		return m.stats.snapshot()
	}
	return m.lastStats
}

// FrameCopy returns what the sink currently shows and the selected slot.
func (m *Manager) FrameCopy() (*image.RGBA, slots.ID) {
	m.muInterf.Lock()
	defer m.muInterf.Unlock()
	m.muUpdate.Lock()
	defer m.muUpdate.Unlock()

	if b, ok := m.sink.(interface{ Clone() *image.RGBA }); ok {
		return b.Clone(), m.selectedSlot
	}

	w, h := m.sink.Width(), m.sink.Height()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, m.sink.ColorAt(x, y).ToRGBA())
		}
	}
	return img, m.selectedSlot
}
