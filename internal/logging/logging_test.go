package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonicat/pcat2_slot_display/internal/config"
)

func TestInit(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	file := filepath.Join(t.TempDir(), "logs", "display.log")
	var buf bytes.Buffer
	require.NoError(t, Init(config.Log{Level: "warn", File: file, MaxSizeMB: 1}, &buf))

	log.Info().Msg("hidden")
	log.Warn().Str("slot", "clock").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"slot":"clock"`)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shown")

	require.Error(t, Init(config.Log{Level: "loud"}))
}
