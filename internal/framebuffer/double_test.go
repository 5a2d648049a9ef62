package framebuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonicat/pcat2_slot_display/internal/gfx"
)

func TestDoubleBeforeCreate(t *testing.T) {
	t.Parallel()

	var d Double
	assert.False(t, d.IsCreated())
	assert.Nil(t, d.Selected())
	assert.Nil(t, d.Previous())
}

func TestDoubleSwapTogglesIndex(t *testing.T) {
	t.Parallel()

	var d Double
	require.NoError(t, d.Create(4, 3))
	assert.True(t, d.IsCreated())

	first, second := d.Selected(), d.Previous()
	require.NotSame(t, first, second)
	assert.Equal(t, 4, first.Width())
	assert.Equal(t, 3, second.Height())

	first.SetColor(0, 0, gfx.Red)
	d.SelectNext()
	assert.Same(t, second, d.Selected())
	assert.Same(t, first, d.Previous())
	assert.Equal(t, gfx.Red, d.Previous().ColorAt(0, 0))

	d.SelectNext()
	assert.Same(t, first, d.Selected())
}

func TestDoubleCreateRejectsEmptySize(t *testing.T) {
	t.Parallel()

	var d Double
	err := d.Create(0, 10)
	require.ErrorIs(t, err, gfx.ErrInvalidSize)
	assert.False(t, d.IsCreated())
}

func TestDoubleRelease(t *testing.T) {
	t.Parallel()

	var d Double
	require.NoError(t, d.Create(2, 2))
	d.SelectNext()
	d.Release()
	assert.False(t, d.IsCreated())
	assert.Nil(t, d.Selected())
}
