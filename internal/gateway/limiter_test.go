package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstPerKey(t *testing.T) {
	s := NewLimiterStore(0.001, 2, 0)
	defer s.Stop()

	assert.True(t, s.Allow("alice"))
	assert.True(t, s.Allow("alice"))
	assert.False(t, s.Allow("alice"))
	assert.True(t, s.Allow("bob"))
}

func TestLimiterSweepForgetsIdle(t *testing.T) {
	s := NewLimiterStore(0.001, 1, 0)
	defer s.Stop()

	assert.True(t, s.Allow("alice"))
	assert.False(t, s.Allow("alice"))

	s.sweep(time.Now().Add(time.Hour))
	assert.True(t, s.Allow("alice"))
}

func TestLimiterStopTwice(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Millisecond)
	s.Stop()
	s.Stop()
}
