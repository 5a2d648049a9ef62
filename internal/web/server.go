// Package web exposes the display manager over HTTP: the current frame as
// PNG, slot control, brightness, fade effect and loop statistics.
package web

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/photonicat/pcat2_slot_display/internal/display"
	"github.com/photonicat/pcat2_slot_display/internal/fade"
	"github.com/photonicat/pcat2_slot_display/internal/slots"
)

// Manager is the part of display.Manager the server drives.
type Manager interface {
	FrameCopy() (*image.RGBA, slots.ID)
	SlotInfos() []display.SlotInfo
	MaxSlots() int
	ActivateSlot(id slots.ID) bool
	ActivateNextSlot()
	ActivatePreviousSlot()
	SetSlotSticky(id slots.ID) bool
	ClearSticky()
	LockSlot(id slots.ID)
	UnlockSlot(id slots.ID)
	EnableSlot(id slots.ID)
	DisableSlot(id slots.ID) bool
	SetSlotDuration(id slots.ID, d time.Duration) bool
	Brightness() uint8
	SetBrightness(level uint8)
	FadeEffect() fade.Effect
	SetFadeEffect(effect fade.Effect)
	DisplayOn()
	DisplayOff()
	IsDisplayOn() bool
	Statistics() display.Statistics
}

type Server struct {
	app *fiber.App
	mgr Manager
}

type slotsResponse struct {
	Slots []display.SlotInfo `json:"slots"`
}

type brightnessBody struct {
	Level *int `json:"level"`
}

type fadeBody struct {
	Effect string `json:"effect"`
}

type durationBody struct {
	// Duration is a Go duration string, "0s" shows the slot forever.
	Duration string `json:"duration"`
}

type displayResponse struct {
	On bool `json:"on"`
}

func New(mgr Manager) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{DisableStartupMessage: true}),
		mgr: mgr,
	}

	s.app.Get("/frame", s.serveFrame)
	s.app.Get("/stats", s.serveStats)

	s.app.Get("/slots", s.serveSlots)
	s.app.Post("/slots/next", func(c *fiber.Ctx) error {
		s.mgr.ActivateNextSlot()
		return c.SendStatus(fiber.StatusNoContent)
	})
	s.app.Post("/slots/previous", func(c *fiber.Ctx) error {
		s.mgr.ActivatePreviousSlot()
		return c.SendStatus(fiber.StatusNoContent)
	})
	s.app.Post("/slots/:id/activate", s.slotAction(s.mgr.ActivateSlot))
	s.app.Post("/slots/:id/sticky", s.slotAction(s.mgr.SetSlotSticky))
	s.app.Post("/slots/:id/disable", s.slotAction(s.mgr.DisableSlot))
	s.app.Post("/slots/:id/enable", s.slotAction(func(id slots.ID) bool {
		s.mgr.EnableSlot(id)
		return true
	}))
	s.app.Post("/slots/:id/lock", s.slotAction(func(id slots.ID) bool {
		s.mgr.LockSlot(id)
		return true
	}))
	s.app.Post("/slots/:id/unlock", s.slotAction(func(id slots.ID) bool {
		s.mgr.UnlockSlot(id)
		return true
	}))
	s.app.Put("/slots/:id/duration", s.setDuration)
	s.app.Delete("/sticky", func(c *fiber.Ctx) error {
		s.mgr.ClearSticky()
		return c.SendStatus(fiber.StatusNoContent)
	})

	s.app.Get("/brightness", s.serveBrightness)
	s.app.Put("/brightness", s.setBrightness)
	s.app.Get("/fade", s.serveFade)
	s.app.Put("/fade", s.setFade)

	s.app.Get("/display", s.serveDisplay)
	s.app.Post("/display/on", func(c *fiber.Ctx) error {
		s.mgr.DisplayOn()
		return s.serveDisplay(c)
	})
	s.app.Post("/display/off", func(c *fiber.Ctx) error {
		s.mgr.DisplayOff()
		return s.serveDisplay(c)
	})

	return s
}

// App is the underlying fiber application, for tests.
func (s *Server) App() *fiber.App { return s.app }

// Run listens on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	stop := context.AfterFunc(ctx, func() {
		if err := s.app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("web server shutdown")
		}
	})
	defer stop()

	log.Info().Str("addr", addr).Msg("starting web server")
	return s.app.Listen(addr)
}

func (s *Server) serveFrame(c *fiber.Ctx) error {
	frame, _ := s.mgr.FrameCopy()
	if frame == nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("No frame available")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to encode image")
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentLength, strconv.Itoa(buf.Len()))
	return c.Send(buf.Bytes())
}

func (s *Server) serveStats(c *fiber.Ctx) error {
	return c.JSON(s.mgr.Statistics())
}

func (s *Server) serveSlots(c *fiber.Ctx) error {
	return c.JSON(slotsResponse{Slots: s.mgr.SlotInfos()})
}

func (s *Server) slotID(c *fiber.Ctx) (slots.ID, error) {
	id, err := c.ParamsInt("id", -1)
	if err != nil || id < 0 || id >= s.mgr.MaxSlots() {
		return slots.Invalid, fiber.NewError(fiber.StatusNotFound, "Unknown slot")
	}
	return slots.ID(id), nil
}

// slotAction answers 409 when the manager refuses the action.
func (s *Server) slotAction(action func(slots.ID) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := s.slotID(c)
		if err != nil {
			return err
		}
		if !action(id) {
			return c.Status(fiber.StatusConflict).SendString("Rejected")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (s *Server) setDuration(c *fiber.Ctx) error {
	id, err := s.slotID(c)
	if err != nil {
		return err
	}
	var body durationBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid JSON")
	}
	d, err := time.ParseDuration(body.Duration)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid duration")
	}
	if !s.mgr.SetSlotDuration(id, d) {
		return c.Status(fiber.StatusConflict).SendString("Rejected")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) serveBrightness(c *fiber.Ctx) error {
	level := int(s.mgr.Brightness())
	return c.JSON(brightnessBody{Level: &level})
}

func (s *Server) setBrightness(c *fiber.Ctx) error {
	var body brightnessBody
	if err := c.BodyParser(&body); err != nil || body.Level == nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid JSON")
	}
	if *body.Level < 0 || *body.Level > 255 {
		return c.Status(fiber.StatusBadRequest).SendString("Level out of range")
	}
	s.mgr.SetBrightness(uint8(*body.Level))
	return s.serveBrightness(c)
}

func (s *Server) serveFade(c *fiber.Ctx) error {
	return c.JSON(fadeBody{Effect: s.mgr.FadeEffect().String()})
}

func (s *Server) setFade(c *fiber.Ctx) error {
	var body fadeBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid JSON")
	}
	effect, ok := fade.ParseEffect(body.Effect)
	if !ok {
		return c.Status(fiber.StatusBadRequest).SendString("Unknown effect")
	}
	s.mgr.SetFadeEffect(effect)
	return c.JSON(body)
}

func (s *Server) serveDisplay(c *fiber.Ctx) error {
	return c.JSON(displayResponse{On: s.mgr.IsDisplayOn()})
}
