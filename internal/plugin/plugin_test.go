package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextUIDIsUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[uint16]bool)
	for i := 0; i < 1000; i++ {
		uid := NextUID()
		assert.NotZero(t, uid)
		assert.False(t, seen[uid], "uid %d handed out twice", uid)
		seen[uid] = true
	}
}

func TestBase(t *testing.T) {
	t.Parallel()

	var p Plugin = struct{ *Base }{NewBase("clock")}
	assert.Equal(t, "clock", p.Name())
	assert.True(t, p.IsEnabled())

	b := NewBase("other")
	assert.NotEqual(t, p.UID(), b.UID())
	b.Disable()
	assert.False(t, b.IsEnabled())
	b.Enable()
	assert.True(t, b.IsEnabled())
}
