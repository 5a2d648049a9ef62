// Package config loads the TOML configuration file. Values missing from the
// file keep their defaults; a missing file is created from the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
)

const (
	SchemaVersion = 1
	DefaultPath   = "/etc/pcat2_slot_display/config.toml"

	PluginClock    = "clock"
	PluginIconText = "icontext"
)

var ErrSchemaMismatch = errors.New("config schema version mismatch")

// Duration reads and writes time.Duration as a string such as "1.5s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Values struct {
	Log          Log     `toml:"log"`
	Display      Display `toml:"display"`
	Panel        Panel   `toml:"panel"`
	Network      Network `toml:"network"`
	Web          Web     `toml:"web"`
	Input        Input   `toml:"input"`
	Assets       Assets  `toml:"assets"`
	Slots        []Slot  `toml:"slots,omitempty"`
	ConfigSchema int     `toml:"config_schema"`
}

type Log struct {
	Level      string `toml:"level"`
	File       string `toml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type Display struct {
	FadeEffect       string   `toml:"fade_effect"`
	ProcessPeriod    Duration `toml:"process_period"`
	UpdatePeriod     Duration `toml:"update_period"`
	StatisticsPeriod Duration `toml:"statistics_period"`
	IdleTimeout      Duration `toml:"idle_timeout"`
	MaxSlots         int      `toml:"max_slots"`
	Width            int      `toml:"width"`
	Height           int      `toml:"height"`
	Brightness       uint8    `toml:"brightness"`
	MinBrightness    uint8    `toml:"min_brightness"`
	MaxBrightness    uint8    `toml:"max_brightness"`
	// Headless renders into memory only, for development machines.
	Headless bool `toml:"headless"`
}

type Panel struct {
	SPIPort       string   `toml:"spi_port"`
	BacklightPath string   `toml:"backlight_path"`
	BacklightOff  Duration `toml:"backlight_off_delay"`
	SPISpeedKHz   int      `toml:"spi_speed_khz"`
}

type Network struct {
	Host     string   `toml:"host"`
	Interval Duration `toml:"interval"`
	Timeout  Duration `toml:"timeout"`
	Enabled  bool     `toml:"enabled"`
}

type Web struct {
	Listen  string `toml:"listen"`
	Enabled bool   `toml:"enabled"`
}

type Input struct {
	Device   string   `toml:"device"`
	Debounce Duration `toml:"debounce"`
	Enabled  bool     `toml:"enabled"`
}

type Assets struct {
	Dir      string  `toml:"dir"`
	Font     string  `toml:"font,omitempty"`
	FontSize float64 `toml:"font_size"`
}

// Slot describes a plugin to install at startup. Slots are filled in
// order.
type Slot struct {
	Plugin   string   `toml:"plugin"`
	Name     string   `toml:"name,omitempty"`
	Icon     string   `toml:"icon,omitempty"`
	Text     string   `toml:"text,omitempty"`
	Duration Duration `toml:"duration"`
	Sticky   bool     `toml:"sticky,omitempty"`
	Locked   bool     `toml:"locked,omitempty"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Log: Log{
		Level:      "info",
		MaxSizeMB:  1,
		MaxBackups: 2,
		MaxAgeDays: 7,
	},
	Display: Display{
		FadeEffect:       "linear",
		ProcessPeriod:    Duration(100 * time.Millisecond),
		UpdatePeriod:     Duration(20 * time.Millisecond),
		StatisticsPeriod: Duration(4 * time.Second),
		IdleTimeout:      Duration(60 * time.Second),
		MaxSlots:         8,
		Width:            172,
		Height:           320,
		Brightness:       127,
		MinBrightness:    2,
		MaxBrightness:    255,
	},
	Panel: Panel{
		SPIPort:       "SPI1.0",
		BacklightPath: "/sys/class/backlight/backlight/brightness",
		BacklightOff:  Duration(5 * time.Second),
		SPISpeedKHz:   100000,
	},
	Network: Network{
		Host:     "8.8.8.8",
		Interval: Duration(10 * time.Second),
		Timeout:  Duration(2 * time.Second),
		Enabled:  true,
	},
	Web: Web{
		Listen:  "127.0.0.1:8081",
		Enabled: true,
	},
	Input: Input{
		Device:   "rk805 pwrkey",
		Debounce: Duration(500 * time.Millisecond),
		Enabled:  true,
	},
	Assets: Assets{
		Dir:      "/usr/local/share/pcat2_slot_display",
		FontSize: 28,
	},
	Slots: []Slot{
		{Plugin: PluginClock, Duration: Duration(10 * time.Second)},
		{Plugin: PluginIconText, Name: "network", Text: "Network {network}", Duration: Duration(5 * time.Second)},
	},
}

type Instance struct {
	fs       afero.Fs
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// New loads cfgPath from fs, writing the defaults there first if the file
// does not exist.
func New(fs afero.Fs, cfgPath string, defaults Values) (*Instance, error) {
	cfg := &Instance{
		fs:       fs,
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := fs.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", cfgPath).Msg("saving new default config to disk")

		if err := fs.MkdirAll(filepath.Dir(cfgPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// File values go on top of the defaults. A slots table in the file
	// replaces the default slots as a whole.
	newVals := c.defaults
	newVals.Slots = nil
	if err := toml.Unmarshal(data, &newVals); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if newVals.Slots == nil {
		newVals.Slots = c.defaults.Slots
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf("schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema, SchemaVersion)
		return ErrSchemaMismatch
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vals.ConfigSchema = SchemaVersion
	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Values returns a copy of the loaded values.
func (c *Instance) Values() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vals := c.vals
	vals.Slots = append([]Slot(nil), c.vals.Slots...)
	return vals
}

func (c *Instance) Path() string {
	return c.cfgPath
}

func (c *Instance) SetBrightness(level uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Display.Brightness = level
}

func (c *Instance) SetFadeEffect(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Display.FadeEffect = name
}
