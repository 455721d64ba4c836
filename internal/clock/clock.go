package clock

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultTimeLimit = 10 * time.Minute
	MaxTimeLimit     = 180 * time.Minute
	MaxIncrement     = 60 * time.Second
)

var ErrInvalidConfig = errors.New("invalid clock config")

// Clock provides time operations that can be replaced in tests.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock in UTC.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(t time.Time) *Manual { return &Manual{now: t} }

func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Config is the time control chosen when a match is created.
type Config struct {
	TimeLimit time.Duration
	Increment time.Duration
}

// Default returns 10 minutes without increment.
func Default() Config { return Config{TimeLimit: DefaultTimeLimit} }

// FromMinutesSeconds builds a Config from the request units used by clients.
func FromMinutesSeconds(minutes, incrementSeconds int) Config {
	return Config{
		TimeLimit: time.Duration(minutes) * time.Minute,
		Increment: time.Duration(incrementSeconds) * time.Second,
	}
}

func (c Config) Validate() error {
	if c.TimeLimit < time.Minute || c.TimeLimit > MaxTimeLimit {
		return fmt.Errorf("%w: time limit %s outside 1m..%s", ErrInvalidConfig, c.TimeLimit, MaxTimeLimit)
	}
	if c.Increment < 0 || c.Increment > MaxIncrement {
		return fmt.Errorf("%w: increment %s outside 0s..%s", ErrInvalidConfig, c.Increment, MaxIncrement)
	}
	return nil
}

// Result is the outcome of charging one seat's clock.
type Result struct {
	RemainingMs int64
	Expired     bool
	// Charged is false when there was no baseline to charge from.
	Charged bool
}

// Charge deducts the time elapsed since lastMoveAt from remainingMs.
// A nil lastMoveAt charges nothing; the caller initializes the baseline.
func Charge(remainingMs int64, lastMoveAt *time.Time, now time.Time) Result {
	if remainingMs < 0 {
		remainingMs = 0
	}
	if lastMoveAt == nil {
		return Result{RemainingMs: remainingMs, Expired: remainingMs == 0}
	}
	elapsed := now.Sub(*lastMoveAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	left := remainingMs - elapsed
	if left < 0 {
		left = 0
	}
	return Result{RemainingMs: left, Expired: left == 0, Charged: true}
}

// Credit adds the per-move increment to a clock that has not expired.
func Credit(remainingMs, incrementMs int64) int64 {
	if incrementMs <= 0 || remainingMs <= 0 {
		return remainingMs
	}
	return remainingMs + incrementMs
}
