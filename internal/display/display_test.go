package display

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/photonicat/pcat2_slot_display/internal/fade"
	"github.com/photonicat/pcat2_slot_display/internal/gfx"
	"github.com/photonicat/pcat2_slot_display/internal/plugin"
	"github.com/photonicat/pcat2_slot_display/internal/sink"
	"github.com/photonicat/pcat2_slot_display/internal/slots"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePlugin struct {
	*plugin.Base
	color gfx.Color

	mu        sync.Mutex
	started   int
	stopped   int
	actives   int
	inactives int
	processes int
	network   bool
}

func newFakePlugin(name string, c gfx.Color) *fakePlugin {
	return &fakePlugin{Base: plugin.NewBase(name), color: c}
}

func (p *fakePlugin) Start(int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started++
}

func (p *fakePlugin) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}

func (p *fakePlugin) Process(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processes++
	p.network = connected
}

func (p *fakePlugin) Active(fb *gfx.Bitmap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actives++
	fb.Fill(p.color)
}

func (p *fakePlugin) Inactive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inactives++
}

func (p *fakePlugin) Update(fb *gfx.Bitmap) {
	fb.Fill(p.color)
}

func (p *fakePlugin) counts() (actives, inactives int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actives, p.inactives
}

type fixture struct {
	m     *Manager
	sink  *sink.Memory
	clock *clockwork.FakeClock
}

// newFixture prepares a manager without starting its loops; tests drive
// process and update directly.
func newFixture(t *testing.T, maxSlots int, effect fade.Effect) *fixture {
	t.Helper()

	mem, err := sink.NewMemory(16, 8)
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()

	cfg := DefaultConfig()
	cfg.MaxSlots = maxSlots
	cfg.FadeEffect = effect

	m, err := New(cfg, mem, Options{Clock: clock})
	require.NoError(t, err)

	m.muInterf.Lock()
	err = m.setup()
	m.muInterf.Unlock()
	require.NoError(t, err)
	t.Cleanup(m.teardown)

	// Apply the configured fade effect.
	m.update()
	return &fixture{m: m, sink: mem, clock: clock}
}

func (f *fixture) install(t *testing.T, p plugin.Plugin, id slots.ID, d time.Duration) {
	t.Helper()
	require.Equal(t, id, f.m.InstallPlugin(p, id))
	require.True(t, f.m.SetSlotDuration(id, d))
}

// settle runs update ticks until no transition is running.
func (f *fixture) settle(t *testing.T) int {
	t.Helper()
	for i := 0; i < 1000; i++ {
		f.m.muUpdate.Lock()
		running := f.m.fade.IsRunning()
		f.m.muUpdate.Unlock()
		if !running {
			return i
		}
		f.m.update()
	}
	t.Fatal("fade never finished")
	return 0
}

func (f *fixture) selected() slots.ID {
	_, id := f.m.FrameCopy()
	return id
}

func TestNewRejectsBadConfig(t *testing.T) {
	mem, err := sink.NewMemory(4, 4)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxSlots = 0
	_, err = New(cfg, mem, Options{})
	require.ErrorIs(t, err, slots.ErrInvalidCount)

	cfg = DefaultConfig()
	cfg.UpdatePeriod = 0
	_, err = New(cfg, mem, Options{})
	require.Error(t, err)
}

func TestBeginTwiceFails(t *testing.T) {
	mem, err := sink.NewMemory(4, 4)
	require.NoError(t, err)
	m, err := New(DefaultConfig(), mem, Options{Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)

	require.NoError(t, m.Begin(context.Background()))
	defer m.End()
	require.ErrorIs(t, m.Begin(context.Background()), ErrAlreadyRunning)
}

func TestEndReleasesBuffers(t *testing.T) {
	f := newFixture(t, 1, fade.Linear)
	a := newFakePlugin("a", gfx.Red)
	f.install(t, a, 0, 0)
	f.m.process()
	require.True(t, f.m.DisableSlot(0))
	f.m.EnableSlot(0)

	f.m.teardown()
	_, inactives := a.counts()
	assert.Equal(t, 1, inactives)
	assert.Nil(t, f.m.fb.Selected())
	assert.False(t, f.m.fade.IsRunning())

	// Loops are gone, ticks are harmless.
	assert.Zero(t, f.m.update())
}

func TestSingleInfiniteSlotStaysActive(t *testing.T) {
	f := newFixture(t, 4, fade.Linear)
	a := newFakePlugin("a", gfx.Red)
	f.install(t, a, 0, 0)

	for i := 0; i < 50; i++ {
		f.m.process()
		f.m.update()
		f.clock.Advance(time.Minute)
	}

	actives, inactives := a.counts()
	assert.Equal(t, 1, actives)
	assert.Zero(t, inactives)
	assert.Equal(t, slots.ID(0), f.selected())
	assert.False(t, f.m.slotTimer.isRunning())
	assert.Equal(t, gfx.Red, f.sink.Latched().ColorAt(3, 3))
}

func TestRotationWaitsForFadeOut(t *testing.T) {
	f := newFixture(t, 4, fade.Linear)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	f.install(t, a, 0, 5*time.Second)
	f.install(t, b, 1, 5*time.Second)

	f.m.process()
	assert.Equal(t, slots.ID(0), f.selected())

	f.clock.Advance(4 * time.Second)
	f.m.process()
	actives, _ := b.counts()
	assert.Zero(t, actives)

	f.clock.Advance(time.Second)
	f.m.process()
	_, inactives := a.counts()
	assert.Equal(t, 1, inactives)
	assert.Equal(t, fade.FadeOut, f.m.fade.State())

	// Still fading out: nothing new gets activated.
	f.m.process()
	actives, _ = b.counts()
	assert.Zero(t, actives)
	assert.Equal(t, slots.Invalid, f.selected())

	for i := 0; i < 256/fade.LinearStep; i++ {
		f.m.update()
	}
	assert.Equal(t, fade.FadeIn, f.m.fade.State())

	f.m.process()
	actives, _ = b.counts()
	assert.Equal(t, 1, actives)
	assert.Equal(t, slots.ID(1), f.selected())

	f.settle(t)
	f.m.update()
	assert.Equal(t, gfx.Green, f.sink.Latched().ColorAt(0, 0))

	// And back to a after another 5 s.
	f.clock.Advance(5 * time.Second)
	f.m.process()
	f.settle(t)
	f.m.process()
	assert.Equal(t, slots.ID(0), f.selected())
}

func TestStickySlotFreezesRotation(t *testing.T) {
	f := newFixture(t, 4, fade.None)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	f.install(t, a, 0, 5*time.Second)
	f.install(t, b, 1, 5*time.Second)

	f.m.process()
	require.Equal(t, slots.ID(0), f.selected())

	require.True(t, f.m.SetSlotSticky(1))
	f.m.process()
	_, inactives := a.counts()
	assert.Equal(t, 1, inactives)

	f.settle(t)
	f.m.process()
	assert.Equal(t, slots.ID(1), f.selected())

	for i := 0; i < 10; i++ {
		f.clock.Advance(10 * time.Second)
		f.m.process()
		f.settle(t)
		assert.Equal(t, slots.ID(1), f.selected())
	}
	actives, _ := a.counts()
	assert.Equal(t, 1, actives)

	assert.False(t, f.m.ActivateSlot(0), "another slot is sticky")
	assert.False(t, f.m.DisableSlot(1), "sticky slot")

	f.m.ClearSticky()
	assert.True(t, f.m.slotTimer.isRunning())
	f.clock.Advance(5 * time.Second)
	f.m.process()
	f.settle(t)
	f.m.process()
	assert.Equal(t, slots.ID(0), f.selected())
}

func TestNoneEffectSwitchesOnNextUpdate(t *testing.T) {
	f := newFixture(t, 2, fade.None)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	f.install(t, a, 0, 0)
	f.install(t, b, 1, 0)

	f.m.process()
	require.True(t, f.m.ActivateSlot(1))
	f.m.process()
	assert.Equal(t, 1, f.settle(t))
	f.m.process()
	assert.Equal(t, slots.ID(1), f.selected())
}

func TestActivateSameSlotRestartsTimerOnly(t *testing.T) {
	f := newFixture(t, 2, fade.Linear)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	f.install(t, a, 0, 5*time.Second)
	f.install(t, b, 1, 5*time.Second)
	f.m.process()

	f.clock.Advance(4 * time.Second)
	require.True(t, f.m.ActivateSlot(0))
	f.m.muInterf.Lock()
	f.m.requested = a
	f.m.muInterf.Unlock()
	f.m.process()

	f.clock.Advance(4 * time.Second)
	f.m.process()
	assert.False(t, f.m.fade.IsRunning())
	_, inactives := a.counts()
	assert.Zero(t, inactives)
}

func TestDisabledPluginIsReplaced(t *testing.T) {
	f := newFixture(t, 3, fade.None)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	f.install(t, a, 0, 0)
	f.install(t, b, 2, 0)
	f.m.process()
	require.Equal(t, slots.ID(0), f.selected())

	a.Disable()
	f.m.process()
	f.settle(t)
	f.m.process()
	assert.Equal(t, slots.ID(2), f.selected())

	// A disabled plugin can't be requested.
	require.True(t, f.m.ActivateSlot(0))
	f.m.process()
	assert.Equal(t, slots.ID(2), f.selected())
}

func TestDisabledSlotIsReplaced(t *testing.T) {
	f := newFixture(t, 3, fade.None)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	f.install(t, a, 0, 0)
	f.install(t, b, 1, 0)
	f.m.process()

	require.True(t, f.m.DisableSlot(0))
	assert.True(t, f.m.IsSlotDisabled(0))
	f.m.process()
	assert.Equal(t, slots.ID(1), f.selected())
	_, inactives := a.counts()
	assert.Equal(t, 1, inactives)
	assert.False(t, f.m.ActivateSlot(0))

	f.m.EnableSlot(0)
	assert.True(t, f.m.ActivateSlot(0))
}

func TestNothingEligibleClearsDisplay(t *testing.T) {
	f := newFixture(t, 2, fade.None)
	f.sink.Fill(gfx.White)
	f.m.process()
	assert.Equal(t, gfx.Black, f.sink.ColorAt(0, 0))
	assert.Equal(t, slots.Invalid, f.selected())
}

func TestInstallPolicy(t *testing.T) {
	f := newFixture(t, 3, fade.None)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	c := newFakePlugin("c", gfx.Yellow)

	assert.Equal(t, slots.Invalid, f.m.InstallPlugin(nil, slots.Invalid))

	f.m.LockSlot(0)
	assert.True(t, f.m.IsSlotLocked(0))
	assert.Equal(t, slots.Invalid, f.m.InstallPlugin(a, 0))
	assert.Nil(t, f.m.PluginInSlot(0))

	assert.Equal(t, slots.ID(1), f.m.InstallPlugin(a, slots.Invalid))
	assert.Equal(t, 1, a.started)
	assert.Equal(t, slots.Invalid, f.m.InstallPlugin(b, 1), "occupied")
	assert.Equal(t, slots.Invalid, f.m.InstallPlugin(a, 2), "already installed")
	assert.Equal(t, slots.ID(2), f.m.InstallPlugin(b, slots.Invalid))
	assert.Equal(t, slots.Invalid, f.m.InstallPlugin(c, slots.Invalid), "full")
	assert.Equal(t, slots.Invalid, f.m.InstallPlugin(c, 7))

	assert.Equal(t, slots.ID(2), f.m.SlotIDByPluginUID(b.UID()))
	assert.Equal(t, 3, f.m.MaxSlots())

	f.m.UnlockSlot(0)
	assert.False(t, f.m.IsSlotLocked(0))
}

func TestUninstallPlugin(t *testing.T) {
	f := newFixture(t, 2, fade.None)
	a := newFakePlugin("a", gfx.Red)
	f.install(t, a, 0, 0)
	f.m.process()
	require.Equal(t, slots.ID(0), f.selected())

	f.m.LockSlot(0)
	assert.False(t, f.m.UninstallPlugin(a))
	f.m.UnlockSlot(0)

	assert.True(t, f.m.UninstallPlugin(a))
	assert.Equal(t, 1, a.stopped)
	assert.Equal(t, slots.Invalid, f.selected())
	assert.False(t, f.m.UninstallPlugin(a), "not installed")
	assert.False(t, f.m.UninstallPlugin(nil))
}

func TestMovePluginToSlot(t *testing.T) {
	f := newFixture(t, 3, fade.None)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	f.install(t, a, 0, 0)
	f.install(t, b, 1, 0)
	f.m.process()

	assert.False(t, f.m.MovePluginToSlot(a, 1), "occupied")
	f.m.LockSlot(2)
	assert.False(t, f.m.MovePluginToSlot(a, 2), "locked")
	f.m.UnlockSlot(2)

	assert.True(t, f.m.MovePluginToSlot(a, 2))
	assert.Nil(t, f.m.PluginInSlot(0))
	assert.Equal(t, slots.ID(2), f.m.SlotIDByPluginUID(a.UID()))
	assert.Equal(t, slots.Invalid, f.selected())
}

func TestActivateNextAndPrevious(t *testing.T) {
	f := newFixture(t, 4, fade.None)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	c := newFakePlugin("c", gfx.Yellow)
	f.install(t, a, 0, 0)
	f.install(t, b, 1, 0)
	f.install(t, c, 3, 0)
	f.m.process()

	step := func() slots.ID {
		f.m.process()
		f.settle(t)
		f.m.process()
		return f.selected()
	}

	f.m.ActivateNextSlot()
	assert.Equal(t, slots.ID(1), step())
	f.m.ActivateNextSlot()
	assert.Equal(t, slots.ID(3), step())
	f.m.ActivateNextSlot()
	assert.Equal(t, slots.ID(0), step())
	f.m.ActivatePreviousSlot()
	assert.Equal(t, slots.ID(3), step())
}

func TestProcessReachesEveryPlugin(t *testing.T) {
	f := newFixture(t, 3, fade.None)
	a := newFakePlugin("a", gfx.Red)
	b := newFakePlugin("b", gfx.Green)
	f.install(t, a, 0, 0)
	f.install(t, b, 2, 0)

	f.m.SetNetworkStatus(true)
	f.m.process()
	f.m.process()

	assert.Equal(t, 2, a.processes)
	assert.Equal(t, 2, b.processes)
	assert.True(t, b.network)
}

func TestIndicatorDrawnOverPlugin(t *testing.T) {
	f := newFixture(t, 1, fade.None)
	a := newFakePlugin("a", gfx.Red)
	f.install(t, a, 0, 0)
	f.m.process()

	f.m.SetIndicator(1, true)
	assert.True(t, f.m.Indicator(1))
	f.m.update()

	// Indicator 1 is the yellow dot in the top left corner.
	img, _ := f.m.FrameCopy()
	c := img.RGBAAt(5, 5)
	assert.NotEqual(t, gfx.Red.ToRGBA(), c)
	assert.Equal(t, gfx.Red.ToRGBA(), img.RGBAAt(15, 7))
}

// plainCanvas shadows Bitmap.Clone, so FrameCopy reads it pixel by pixel.
type plainCanvas struct {
	*sink.Memory
}

func (plainCanvas) Clone() {}

func TestFrameCopyIsIndependent(t *testing.T) {
	f := newFixture(t, 1, fade.None)
	a := newFakePlugin("a", gfx.Red)
	f.install(t, a, 0, 0)
	f.m.process()
	f.m.update()

	img, id := f.m.FrameCopy()
	assert.Equal(t, slots.ID(0), id)
	assert.Equal(t, gfx.Red.ToRGBA(), img.RGBAAt(3, 3))

	f.sink.Fill(gfx.Green)
	assert.Equal(t, gfx.Red.ToRGBA(), img.RGBAAt(3, 3))
}

func TestFrameCopyReadsAnyCanvas(t *testing.T) {
	mem, err := sink.NewMemory(4, 2)
	require.NoError(t, err)
	mem.Fill(gfx.Yellow)

	m, err := New(DefaultConfig(), plainCanvas{mem}, Options{Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)

	img, id := m.FrameCopy()
	assert.Equal(t, slots.Invalid, id)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, gfx.Yellow.ToRGBA(), img.RGBAAt(3, 1))
}

func TestDisplayAndBrightnessPassthrough(t *testing.T) {
	f := newFixture(t, 1, fade.None)

	f.m.DisplayOff()
	assert.False(t, f.m.IsDisplayOn())
	f.m.DisplayOn()
	assert.True(t, f.m.IsDisplayOn())

	f.m.SetBrightness(100)
	assert.Equal(t, uint8(100), f.m.Brightness())
	f.m.process()
	assert.Equal(t, uint8(100), f.sink.Brightness())

	f.m.SetBrightnessSoftLimits(10, 50)
	lo, hi := f.m.BrightnessSoftLimits()
	assert.Equal(t, uint8(10), lo)
	assert.Equal(t, uint8(50), hi)
	f.m.process()
	assert.Equal(t, uint8(50), f.sink.Brightness())

	assert.True(t, f.m.SetAutoBrightnessAdjustment(true))
	assert.True(t, f.m.AutoBrightnessAdjustment())

	f.m.SetFadeEffect(fade.MoveY)
	assert.Equal(t, fade.MoveY, f.m.FadeEffect())
}

func TestSlotInfos(t *testing.T) {
	f := newFixture(t, 2, fade.None)
	a := newFakePlugin("a", gfx.Red)
	f.install(t, a, 1, 3*time.Second)
	f.m.process()
	require.True(t, f.m.SetSlotSticky(1))

	infos := f.m.SlotInfos()
	require.Len(t, infos, 2)
	assert.Empty(t, infos[0].Plugin)
	assert.Equal(t, SlotInfo{
		ID:        1,
		PluginUID: a.UID(),
		Plugin:    "a",
		Sticky:    true,
		Active:    true,
		Duration:  3 * time.Second,
	}, infos[1])
	assert.Equal(t, 3*time.Second, f.m.SlotDuration(1))
	assert.Equal(t, slots.ID(1), f.m.StickySlot())
}

func TestLoopsRunOnTicker(t *testing.T) {
	mem, err := sink.NewMemory(8, 8)
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()

	cfg := DefaultConfig()
	cfg.MaxSlots = 2
	cfg.FadeEffect = fade.None
	m, err := New(cfg, mem, Options{Clock: clock})
	require.NoError(t, err)

	a := newFakePlugin("a", gfx.Green)
	require.Equal(t, slots.ID(0), m.InstallPlugin(a, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Begin(ctx))

	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	for i := 0; i < 20; i++ {
		clock.Advance(cfg.UpdatePeriod)
		time.Sleep(time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		actives, _ := a.counts()
		return actives == 1 && mem.Latched().ColorAt(4, 4) == gfx.Green
	}, time.Second, 5*time.Millisecond)

	m.End()
	m.End()
	assert.Positive(t, mem.Shows())
	assert.Positive(t, m.Statistics().Total.Max+m.Statistics().RefreshPeriod.Max)
}
