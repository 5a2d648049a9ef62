// Package app wires the configuration, the display sink, the display
// manager, its plugins and the background services together.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/image/font"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/physic"

	"github.com/photonicat/pcat2_slot_display/internal/brightness"
	"github.com/photonicat/pcat2_slot_display/internal/config"
	"github.com/photonicat/pcat2_slot_display/internal/display"
	"github.com/photonicat/pcat2_slot_display/internal/fade"
	"github.com/photonicat/pcat2_slot_display/internal/gfx"
	"github.com/photonicat/pcat2_slot_display/internal/indicator"
	"github.com/photonicat/pcat2_slot_display/internal/input"
	"github.com/photonicat/pcat2_slot_display/internal/netmon"
	"github.com/photonicat/pcat2_slot_display/internal/plugin"
	"github.com/photonicat/pcat2_slot_display/internal/plugins/clock"
	"github.com/photonicat/pcat2_slot_display/internal/plugins/icontext"
	"github.com/photonicat/pcat2_slot_display/internal/sink"
	"github.com/photonicat/pcat2_slot_display/internal/slots"
	"github.com/photonicat/pcat2_slot_display/internal/web"
)

// NetworkPlaceholder in a slot text is replaced by the network state.
const NetworkPlaceholder = "{network}"

var ErrUnknownPlugin = errors.New("unknown plugin")

// Options replace hardware and time for tests.
type Options struct {
	Clock clockwork.Clock
	// Sink is used instead of the panel or the headless memory sink.
	Sink   display.Sink
	Pinger netmon.Pinger
	// Headless forces the memory sink regardless of the config.
	Headless bool
	// Ready is called once everything is running.
	Ready func(*App)
}

type App struct {
	cfg        *config.Instance
	vals       config.Values
	fs         afero.Fs
	clock      clockwork.Clock
	brightness *brightness.Ctrl
	indicators *indicator.View
	mgr        *display.Manager
	plugins    []plugin.Plugin
}

func (a *App) Manager() *display.Manager { return a.mgr }

func (a *App) Plugins() []plugin.Plugin { return a.plugins }

// Run starts the display and the enabled services and blocks until ctx is
// done or a service fails. The brightness and fade effect in use are saved
// to the config file on the way out.
func Run(ctx context.Context, fs afero.Fs, cfg *config.Instance, opts Options) error {
	vals := cfg.Values()
	a := &App{
		cfg:        cfg,
		vals:       vals,
		fs:         fs,
		clock:      opts.Clock,
		indicators: indicator.NewView(),
	}
	if opts.Headless {
		a.vals.Display.Headless = true
	}
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}

	snk := opts.Sink
	if snk == nil {
		s, closeSink, err := a.openSink()
		if err != nil {
			return err
		}
		defer closeSink()
		snk = s
	}

	timing := brightness.DefaultTiming
	if d := vals.Display.IdleTimeout.Std(); d > 0 {
		timing.IdleTimeout = d
	}
	a.brightness = brightness.New(a.clock, timing)

	mgr, err := display.New(a.displayConfig(), snk, display.Options{
		Clock:      a.clock,
		Brightness: a.brightness,
		Indicators: a.indicators,
	})
	if err != nil {
		return err
	}
	a.mgr = mgr

	if err := a.installPlugins(); err != nil {
		return err
	}

	if err := mgr.Begin(ctx); err != nil {
		return err
	}
	defer a.shutdown()

	g, gctx := errgroup.WithContext(ctx)
	a.startServices(gctx, g, opts.Pinger)

	if opts.Ready != nil {
		opts.Ready(a)
	}
	<-gctx.Done()
	mgr.End()
	return g.Wait()
}

func (a *App) openSink() (display.Sink, func(), error) {
	d := a.vals.Display
	if d.Headless {
		log.Info().Int("width", d.Width).Int("height", d.Height).Msg("running headless")
		mem, err := sink.NewMemory(d.Width, d.Height)
		if err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	}

	p := a.vals.Panel
	backlight := sink.NewBacklight(a.fs, p.BacklightPath, a.clock, p.BacklightOff.Std())
	panel, err := sink.OpenPanel(sink.PanelConfig{
		SPIPort:  p.SPIPort,
		SPISpeed: physic.Frequency(p.SPISpeedKHz) * physic.KiloHertz,
	}, backlight)
	if err != nil {
		return nil, nil, fmt.Errorf("open panel: %w", err)
	}
	return panel, func() {
		if err := panel.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close panel")
		}
	}, nil
}

func (a *App) displayConfig() display.Config {
	d := a.vals.Display
	cfg := display.DefaultConfig()
	cfg.MaxSlots = d.MaxSlots
	cfg.ProcessPeriod = d.ProcessPeriod.Std()
	cfg.UpdatePeriod = d.UpdatePeriod.Std()
	cfg.StatisticsPeriod = d.StatisticsPeriod.Std()
	cfg.Brightness = d.Brightness
	cfg.MinBrightness = d.MinBrightness
	cfg.MaxBrightness = d.MaxBrightness

	effect, ok := fade.ParseEffect(d.FadeEffect)
	if !ok {
		log.Warn().Str("effect", d.FadeEffect).Msg("unknown fade effect, using linear")
		effect = fade.Linear
	}
	cfg.FadeEffect = effect
	return cfg
}

// installPlugins fills the slots in config order. The assets directory is
// the root for icon and font paths.
func (a *App) installPlugins() error {
	assets := afero.NewBasePathFs(a.fs, a.vals.Assets.Dir)
	loader := gfx.NewLoader(assets)

	var face font.Face
	if a.vals.Assets.Font != "" {
		f, err := loader.Face(a.vals.Assets.Font, a.vals.Assets.FontSize)
		if err != nil {
			log.Error().Err(err).Str("font", a.vals.Assets.Font).Msg("failed to load font, using fallback")
		} else {
			face = f
		}
	}

	for _, s := range a.vals.Slots {
		p, err := a.newPlugin(s, assets, loader, face)
		if err != nil {
			return err
		}
		id := a.mgr.InstallPlugin(p, slots.Invalid)
		if id == slots.Invalid {
			log.Warn().Str("plugin", p.Name()).Msg("no free slot")
			continue
		}
		a.plugins = append(a.plugins, p)
		a.mgr.SetSlotDuration(id, s.Duration.Std())
		if s.Sticky && !a.mgr.SetSlotSticky(id) {
			log.Warn().Str("plugin", p.Name()).Msg("failed to make slot sticky")
		}
		if s.Locked {
			a.mgr.LockSlot(id)
		}
		log.Info().Str("plugin", p.Name()).Uint8("slot", id).Dur("duration", s.Duration.Std()).Msg("installed plugin")
	}
	return nil
}

func (a *App) newPlugin(s config.Slot, assets afero.Fs, loader *gfx.Loader, face font.Face) (plugin.Plugin, error) {
	switch s.Plugin {
	case config.PluginClock:
		return clock.New(a.clock, clock.WithFaces(face, nil)), nil
	case config.PluginIconText:
		cfg := icontext.Config{Name: s.Name, Icon: s.Icon, Text: s.Text}
		if strings.Contains(s.Text, NetworkPlaceholder) {
			text := s.Text
			cfg.Text = strings.ReplaceAll(text, NetworkPlaceholder, "offline")
			cfg.TextFunc = func(connected bool) string {
				state := "offline"
				if connected {
					state = "online"
				}
				return strings.ReplaceAll(text, NetworkPlaceholder, state)
			}
		}
		return icontext.New(cfg, assets, loader, a.clock), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, s.Plugin)
	}
}

func (a *App) startServices(ctx context.Context, g *errgroup.Group, pinger netmon.Pinger) {
	if n := a.vals.Network; n.Enabled {
		mon := netmon.New(a.clock, pinger, n.Host, n.Interval.Std(), n.Timeout.Std(), a.mgr, a.indicators)
		g.Go(func() error {
			mon.Run(ctx)
			return nil
		})
	}

	if in := a.vals.Input; in.Enabled {
		key := input.NewPowerKey(a.clock, a.mgr, a.brightness, in.Debounce.Std())
		g.Go(func() error {
			// The display still works without the key.
			if err := key.Run(ctx, in.Device); err != nil {
				log.Error().Err(err).Msg("power key disabled")
			}
			return nil
		})
	}

	if w := a.vals.Web; w.Enabled {
		srv := web.New(a.mgr)
		g.Go(func() error {
			if err := srv.Run(ctx, w.Listen); err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
	}
}

func (a *App) shutdown() {
	a.cfg.SetBrightness(a.mgr.Brightness())
	a.cfg.SetFadeEffect(a.mgr.FadeEffect().String())
	if err := a.cfg.Save(); err != nil {
		log.Error().Err(err).Msg("failed to save config")
	}

	for _, p := range a.plugins {
		a.mgr.UninstallPlugin(p)
	}
}
