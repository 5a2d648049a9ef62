package sink

import (
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"

	gc9307 "github.com/photonicat/periph.io-gc9307"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/photonicat/pcat2_slot_display/internal/gfx"
	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
)

const (
	PanelWidth   = 172
	PanelHeight  = 320
	PanelXOffset = 34

	RSTPin = "GPIO122"
	DCPin  = "GPIO121"
	BLPin  = "GPIO117"
	// The panel runs with UseCS off, the driver still wants a CS pin.
	CSPlaceholderPin = "GPIO0"
)

type PanelConfig struct {
	SPIPort  string
	SPISpeed physic.Frequency
}

func DefaultPanelConfig() PanelConfig {
	return PanelConfig{
		SPIPort:  "SPI1.0",
		SPISpeed: 100000 * physic.KiloHertz,
	}
}

// Panel is the photonicat2 172x320 GC9307 LCD. Frames are drawn into a
// bitmap, Show hands a copy to a transfer goroutine and IsReady turns true
// once it reached the panel.
type Panel struct {
	*gfx.Bitmap

	port      spi.PortCloser
	dev       frameWriter
	backlight *Backlight

	frames chan []color.RGBA
	// pending counts frames handed to Show and not yet on the panel.
	pending atomic.Int32
	wg      sync.WaitGroup

	mu         syncutil.Mutex
	on         bool
	brightness uint8
}

// frameWriter is the part of the gc9307 driver the transfer goroutine uses.
type frameWriter interface {
	FillRectangleWithBuffer(x, y, width, height int16, buffer []color.RGBA) error
}

// OpenPanel initializes the board, the SPI bus and the panel.
func OpenPanel(cfg PanelConfig, backlight *Backlight) (*Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.SPIPort, err)
	}
	conn, err := port.Connect(cfg.SPISpeed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.SPIPort, err)
	}

	bitmap, err := gfx.NewBitmap(PanelWidth, PanelHeight)
	if err != nil {
		port.Close()
		return nil, err
	}

	dev := gc9307.New(conn,
		gpioreg.ByName(RSTPin),
		gpioreg.ByName(DCPin),
		gpioreg.ByName(CSPlaceholderPin),
		gpioreg.ByName(BLPin))
	dev.Configure(gc9307.Config{
		Width:        PanelWidth,
		Height:       PanelHeight,
		Rotation:     gc9307.ROTATION_180,
		RowOffset:    0,
		ColumnOffset: PanelXOffset,
		FrameRate:    gc9307.FRAMERATE_60,
		VSyncLines:   gc9307.MAX_VSYNC_SCANLINES,
		UseCS:        false,
	})

	p := newPanel(bitmap, &dev, backlight)
	p.port = port
	log.Info().Str("port", cfg.SPIPort).Msg("panel is up")
	return p, nil
}

func newPanel(bitmap *gfx.Bitmap, dev frameWriter, backlight *Backlight) *Panel {
	p := &Panel{
		Bitmap:    bitmap,
		dev:       dev,
		backlight: backlight,
		frames:    make(chan []color.RGBA, 1),
		on:        true,
	}
	p.wg.Add(1)
	go p.transfer()
	return p
}

func (p *Panel) transfer() {
	defer p.wg.Done()
	for buf := range p.frames {
		err := p.dev.FillRectangleWithBuffer(0, 0, int16(p.Width()), int16(p.Height()), buf)
		if err != nil {
			log.Error().Err(err).Msg("panel transfer failed")
		}
		p.pending.Add(-1)
	}
}

// Close stops the transfer goroutine and releases the SPI port.
func (p *Panel) Close() error {
	close(p.frames)
	p.wg.Wait()
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}

func (p *Panel) Clear() {
	p.Fill(gfx.Black)
}

// Show queues a copy of the bitmap for the transfer goroutine. A frame
// still queued from an earlier Show is replaced. Show is called from the
// update loop only.
func (p *Panel) Show() {
	img := p.Image()
	buf := make([]color.RGBA, p.Width()*p.Height())
	for i := range buf {
		o := i * 4
		buf[i] = color.RGBA{R: img.Pix[o], G: img.Pix[o+1], B: img.Pix[o+2], A: 255}
	}

	p.pending.Add(1)
	select {
	case p.frames <- buf:
	default:
		select {
		case <-p.frames:
			p.pending.Add(-1)
		default:
		}
		p.frames <- buf
	}
}

// IsReady reports whether every shown frame reached the panel.
func (p *Panel) IsReady() bool {
	return p.pending.Load() == 0
}

func (p *Panel) On() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = true
	p.backlight.Set(Percent(p.brightness))
}

func (p *Panel) Off() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = false
	p.backlight.Set(0)
}

func (p *Panel) IsOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

func (p *Panel) SetBrightness(level uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.brightness = level
	if p.on {
		p.backlight.Set(Percent(level))
	}
}
