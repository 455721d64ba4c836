package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterStore keeps one token bucket per player and forgets idle players.
type LimiterStore struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	clients map[string]*limiterEntry
	stopCh  chan struct{}
	stop    sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore allows perSecond operations per player with the given burst.
// A zero cleanup interval disables the background sweep.
func NewLimiterStore(perSecond float64, burst int, cleanup time.Duration) *LimiterStore {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	s := &LimiterStore{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		clients: make(map[string]*limiterEntry),
		stopCh:  make(chan struct{}),
	}
	if cleanup > 0 {
		go s.cleanupLoop(cleanup)
	}
	return s
}

func (s *LimiterStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

func (s *LimiterStore) sweep(now time.Time) {
	cutoff := now.Add(-s.idle)
	s.mu.Lock()
	for k, v := range s.clients {
		if v.lastSeen.Before(cutoff) {
			delete(s.clients, k)
		}
	}
	s.mu.Unlock()
}

// Stop ends the cleanup goroutine.
func (s *LimiterStore) Stop() { s.stop.Do(func() { close(s.stopCh) }) }

// Allow reports whether key may perform one more operation now.
func (s *LimiterStore) Allow(key string) bool {
	s.mu.Lock()
	e, ok := s.clients[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = e
	}
	e.lastSeen = time.Now()
	s.mu.Unlock()
	return e.limiter.Allow()
}
