package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsSingleton(t *testing.T) {
	a := Get()
	b := Get()
	assert.Same(t, a, b)
}

func TestSetDebugTogglesLevel(t *testing.T) {
	SetDebug(true)
	assert.True(t, Get().Enabled(nil, -4)) // slog.LevelDebug == -4

	SetDebug(false)
	assert.False(t, Get().Enabled(nil, -4))
}

func TestForInstanceTagsLogger(t *testing.T) {
	l := ForInstance(3)
	assert.NotNil(t, l)
}
