// Package icontext is a plugin showing an icon above a line of text on a
// rounded plate. Icons are SVG, PNG or JPEG files, or GIF animations that
// play at their own frame delays.
package icontext

import (
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/photonicat/pcat2_slot_display/internal/gfx"
	"github.com/photonicat/pcat2_slot_display/internal/gif"
	"github.com/photonicat/pcat2_slot_display/internal/plugin"
	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
)

const (
	plateMargin  = 8
	plateRadius  = 10
	platePadding = 6
	// Frames without a delay would spin the update loop.
	minFrameDelay = 20 * time.Millisecond
)

// TextFunc produces the text line. It is evaluated on every process tick.
type TextFunc func(isNetworkConnected bool) string

type Config struct {
	Name string
	// Icon is a path on the loader's filesystem. Empty means text only.
	Icon     string
	IconSize int
	Text     string
	TextFunc TextFunc
	Face     font.Face
	Color    gfx.Color
	Plate    gfx.Color
}

type Plugin struct {
	*plugin.Base

	cfg    Config
	fs     afero.Fs
	loader *gfx.Loader
	clock  clockwork.Clock

	icon      *image.RGBA
	anim      *gif.Animation
	frame     int
	frameAt   time.Time
	width     int
	height    int
	dirty     bool
	mu        syncutil.Mutex
	text      string
	drawnText string
}

func New(cfg Config, fs afero.Fs, loader *gfx.Loader, clock clockwork.Clock) *Plugin {
	if cfg.Name == "" {
		cfg.Name = "icontext"
	}
	if cfg.Face == nil {
		cfg.Face = basicfont.Face7x13
	}
	if cfg.Color == (gfx.Color{}) {
		cfg.Color = gfx.White
	}
	if cfg.Plate == (gfx.Color{}) {
		cfg.Plate = gfx.RGB(40, 40, 40)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Plugin{
		Base:   plugin.NewBase(cfg.Name),
		cfg:    cfg,
		fs:     fs,
		loader: loader,
		clock:  clock,
		text:   cfg.Text,
	}
}

// Start loads the icon. A missing or broken icon is logged and the plugin
// shows its text only.
func (p *Plugin) Start(width, height int) {
	p.width, p.height = width, height
	if p.cfg.Icon == "" {
		return
	}
	size := p.cfg.IconSize
	if size <= 0 {
		size = width / 2
	}

	if strings.EqualFold(filepath.Ext(p.cfg.Icon), ".gif") {
		anim, err := gif.Load(p.fs, p.cfg.Icon)
		if err != nil {
			log.Error().Err(err).Str("plugin", p.Name()).Msg("Failed to load animation")
			return
		}
		p.anim = anim
		return
	}

	icon, err := p.loader.Image(p.cfg.Icon, size, size)
	if err != nil {
		log.Error().Err(err).Str("plugin", p.Name()).Msg("Failed to load icon")
		return
	}
	p.icon = icon
}

func (p *Plugin) Stop() {
	p.icon = nil
	p.anim = nil
}

// SetText replaces the static text line. Safe to call from any goroutine.
func (p *Plugin) SetText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = text
}

func (p *Plugin) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

func (p *Plugin) Process(isNetworkConnected bool) {
	if p.cfg.TextFunc == nil {
		return
	}
	p.SetText(p.cfg.TextFunc(isNetworkConnected))
}

func (p *Plugin) Active(fb *gfx.Bitmap) {
	p.frame = 0
	p.frameAt = p.clock.Now()
	p.dirty = true
	p.draw(fb)
}

func (p *Plugin) Update(fb *gfx.Bitmap) {
	if p.anim != nil && len(p.anim.Frames) > 1 {
		delay := max(p.anim.Frames[p.frame].Delay, minFrameDelay)
		if p.clock.Since(p.frameAt) >= delay {
			p.frame = (p.frame + 1) % len(p.anim.Frames)
			p.frameAt = p.frameAt.Add(delay)
			// Do not try to catch up after a long pause.
			if p.clock.Since(p.frameAt) >= delay {
				p.frameAt = p.clock.Now()
			}
			p.dirty = true
		}
	}
	if text := p.Text(); text != p.drawnText {
		p.dirty = true
	}
	p.draw(fb)
}

// Frame is the index of the animation frame on screen.
func (p *Plugin) Frame() int { return p.frame }

func (p *Plugin) currentIcon() *image.RGBA {
	if p.anim != nil {
		return p.anim.Frames[p.frame].Image
	}
	return p.icon
}

func (p *Plugin) draw(fb *gfx.Bitmap) {
	if !p.dirty {
		return
	}
	p.dirty = false
	p.drawnText = p.Text()

	fb.Fill(gfx.Black)
	img := fb.Image()

	lineHeight := p.cfg.Face.Metrics().Height.Round()
	plateHeight := lineHeight + 2*platePadding
	plateY := fb.Height() - plateMargin - plateHeight

	if icon := p.currentIcon(); icon != nil {
		b := icon.Bounds()
		x := (fb.Width() - b.Dx()) / 2
		y := (plateY - b.Dy()) / 2
		if err := gfx.CopyImageAt(img, icon, x, y); err != nil {
			log.Warn().Err(err).Str("plugin", p.Name()).Msg("Failed to draw icon")
		}
	}

	if p.drawnText == "" {
		return
	}
	gfx.FillRoundedRect(img, plateMargin, float64(plateY),
		float64(fb.Width()-2*plateMargin), float64(plateHeight), plateRadius, p.cfg.Plate)
	text := fitText(p.drawnText, fb.Width()-2*(plateMargin+platePadding), p.cfg.Face)
	gfx.DrawText(img, text, fb.Width()/2, plateY+platePadding, p.cfg.Face, p.cfg.Color, true)
}

// fitText shortens text with an ellipsis until it is at most width pixels
// wide.
func fitText(text string, width int, face font.Face) string {
	if gfx.MeasureText(text, face) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if short := string(runes) + "..."; gfx.MeasureText(short, face) <= width {
			return short
		}
	}
	return ""
}
