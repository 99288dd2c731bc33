package readiness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState(t *testing.T) {
	s := New("jobs")
	assert.Equal(t, "jobs", s.Name())
	assert.False(t, s.Ready())

	s.MarkReady()
	assert.True(t, s.Ready())
	assert.False(t, s.Since().IsZero())

	s.MarkDown(errors.New("tick failed"))
	assert.False(t, s.Ready())
	assert.Equal(t, "tick failed", s.LastError())

	var nilState *State
	assert.False(t, nilState.Ready())
}

func TestFunc(t *testing.T) {
	up := true
	var p Probe = Func{N: "db", F: func() bool { return up }}
	assert.True(t, p.Ready())
	up = false
	assert.False(t, p.Ready())
}
