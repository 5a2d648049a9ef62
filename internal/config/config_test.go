package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPath = "/etc/pcat/config.toml"

func TestNewWritesDefaults(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg, err := New(fs, testPath, BaseDefaults)
	require.NoError(t, err)

	exists, err := afero.Exists(fs, testPath)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := afero.ReadFile(fs, testPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fade_effect")
	assert.Contains(t, string(data), "100ms")

	vals := cfg.Values()
	assert.Equal(t, BaseDefaults.Display, vals.Display)
	assert.Equal(t, BaseDefaults.Slots, vals.Slots)

	// A second start reads the file it wrote.
	again, err := New(fs, testPath, BaseDefaults)
	require.NoError(t, err)
	assert.Equal(t, vals, again.Values())
}

func TestFileValuesOverrideDefaults(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte(`
config_schema = 1

[display]
fade_effect = "moveX"
update_period = "40ms"
max_slots = 4

[[slots]]
plugin = "clock"
duration = "0s"
sticky = true
`), 0o600))

	cfg, err := New(fs, testPath, BaseDefaults)
	require.NoError(t, err)
	vals := cfg.Values()

	assert.Equal(t, "moveX", vals.Display.FadeEffect)
	assert.Equal(t, 40*time.Millisecond, vals.Display.UpdatePeriod.Std())
	assert.Equal(t, 4, vals.Display.MaxSlots)
	// Untouched keys keep their defaults.
	assert.Equal(t, 100*time.Millisecond, vals.Display.ProcessPeriod.Std())
	assert.Equal(t, BaseDefaults.Network, vals.Network)

	require.Len(t, vals.Slots, 1)
	assert.Equal(t, Slot{Plugin: PluginClock, Sticky: true}, vals.Slots[0])
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte("config_schema = 7\n"), 0o600))
	_, err := New(fs, testPath, BaseDefaults)
	require.ErrorIs(t, err, ErrSchemaMismatch)

	require.NoError(t, afero.WriteFile(fs, testPath, []byte("config_schema = 1\n[display]\nupdate_period = \"soon\"\n"), 0o600))
	_, err = New(fs, testPath, BaseDefaults)
	require.Error(t, err)

	_, err = New(afero.NewReadOnlyFs(afero.NewMemMapFs()), testPath, BaseDefaults)
	require.Error(t, err)
}

func TestSaveKeepsChanges(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg, err := New(fs, testPath, BaseDefaults)
	require.NoError(t, err)

	cfg.SetBrightness(42)
	cfg.SetFadeEffect("none")
	require.NoError(t, cfg.Save())
	assert.Equal(t, testPath, cfg.Path())

	reloaded, err := New(fs, testPath, BaseDefaults)
	require.NoError(t, err)
	assert.Equal(t, uint8(42), reloaded.Values().Display.Brightness)
	assert.Equal(t, "none", reloaded.Values().Display.FadeEffect)
}

func TestValuesIsACopy(t *testing.T) {
	t.Parallel()

	cfg, err := New(afero.NewMemMapFs(), testPath, BaseDefaults)
	require.NoError(t, err)

	vals := cfg.Values()
	vals.Slots[0].Plugin = "changed"
	assert.Equal(t, PluginClock, cfg.Values().Slots[0].Plugin)
}
