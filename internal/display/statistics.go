package display

import (
	"time"

	"github.com/rs/zerolog"
)

// Stat is the min, average and max of a measured duration over one
// statistics window.
type Stat struct {
	Min time.Duration `json:"min"`
	Avg time.Duration `json:"avg"`
	Max time.Duration `json:"max"`
}

// Statistics describes the update loop timing.
type Statistics struct {
	// PluginProcessing is the time spent painting and compositing.
	PluginProcessing Stat `json:"pluginProcessing"`
	// DisplayUpdate is the time spent waiting for the sink to be ready.
	DisplayUpdate Stat `json:"displayUpdate"`
	Total         Stat `json:"total"`
	RefreshPeriod Stat `json:"refreshPeriod"`
	// ReadySlips counts updates that gave up waiting for the sink.
	ReadySlips int `json:"readySlips"`
}

type statValue struct {
	min, max, sum, current time.Duration
	count                  int64
}

func (s *statValue) update(d time.Duration) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.sum += d
	s.current = d
	s.count++
}

func (s *statValue) stat() Stat {
	if s.count == 0 {
		return Stat{}
	}
	return Stat{Min: s.min, Avg: s.sum / time.Duration(s.count), Max: s.max}
}

type statistics struct {
	pluginProcessing statValue
	displayUpdate    statValue
	total            statValue
	refreshPeriod    statValue
	readySlips       int
}

func (s *statistics) snapshot() Statistics {
	return Statistics{
		PluginProcessing: s.pluginProcessing.stat(),
		DisplayUpdate:    s.displayUpdate.stat(),
		Total:            s.total.stat(),
		RefreshPeriod:    s.refreshPeriod.stat(),
		ReadySlips:       s.readySlips,
	}
}

func (s Stat) MarshalZerologObject(e *zerolog.Event) {
	e.Dur("min", s.Min).Dur("avg", s.Avg).Dur("max", s.Max)
}

func (s Statistics) MarshalZerologObject(e *zerolog.Event) {
	e.Object("processing", s.PluginProcessing).
		Object("displayUpdate", s.DisplayUpdate).
		Object("total", s.Total).
		Object("refreshPeriod", s.RefreshPeriod).
		Int("readySlips", s.ReadySlips)
}
