// Package clock is a plugin showing the wall clock.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/photonicat/pcat2_slot_display/internal/gfx"
	"github.com/photonicat/pcat2_slot_display/internal/plugin"
)

// Plugin draws HH:MM centered, with the colon blinking every second, and
// the date below.
type Plugin struct {
	*plugin.Base

	clock     clockwork.Clock
	face      font.Face
	dateFace  font.Face
	color     gfx.Color
	location  *time.Location
	width     int
	height    int
	lastDrawn string
}

type Option func(*Plugin)

func WithFaces(timeFace, dateFace font.Face) Option {
	return func(p *Plugin) {
		if timeFace != nil {
			p.face = timeFace
		}
		if dateFace != nil {
			p.dateFace = dateFace
		}
	}
}

func WithColor(c gfx.Color) Option {
	return func(p *Plugin) { p.color = c }
}

func WithLocation(loc *time.Location) Option {
	return func(p *Plugin) { p.location = loc }
}

func New(clock clockwork.Clock, opts ...Option) *Plugin {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	p := &Plugin{
		Base:     plugin.NewBase("clock"),
		clock:    clock,
		face:     basicfont.Face7x13,
		dateFace: basicfont.Face7x13,
		color:    gfx.White,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Start(width, height int) {
	p.width, p.height = width, height
}

func (p *Plugin) Active(fb *gfx.Bitmap) {
	p.lastDrawn = ""
	p.draw(fb)
}

func (p *Plugin) Update(fb *gfx.Bitmap) {
	p.draw(fb)
}

// Text returns what the plugin shows at t.
func (p *Plugin) Text(t time.Time) (string, string) {
	t = t.In(p.location)
	layout := "15:04"
	if t.Second()%2 == 1 {
		layout = "15 04"
	}
	return t.Format(layout), t.Format("Mon 02 Jan")
}

func (p *Plugin) draw(fb *gfx.Bitmap) {
	clockText, dateText := p.Text(p.clock.Now())
	if clockText == p.lastDrawn {
		return
	}
	p.lastDrawn = clockText

	fb.Fill(gfx.Black)
	img := fb.Image()
	centerX := fb.Width() / 2
	clockHeight := p.face.Metrics().Height.Round()
	y := fb.Height()/2 - clockHeight
	_, y = gfx.DrawText(img, clockText, centerX, y, p.face, p.color, true)
	gfx.DrawText(img, dateText, centerX, y+4, p.dateFace, gfx.Grey, true)
}
