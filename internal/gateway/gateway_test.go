package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/coordinator"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

var (
	t0    = time.Date(2025, 11, 21, 9, 0, 0, 0, time.UTC)
	alice = match.Player{ID: "alice", Name: "Alice"}
	bob   = match.Player{ID: "bob", Name: "Bob"}
	carol = match.Player{ID: "carol", Name: "Carol"}
)

// fakeConn records frames up to capacity and refuses the rest.
type fakeConn struct {
	id     string
	cap    int
	mu     sync.Mutex
	frames []matchdto.Outbound
}

func newFakeConn(id string, capacity int) *fakeConn { return &fakeConn{id: id, cap: capacity} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) >= f.cap {
		return false
	}
	var out matchdto.Outbound
	if err := json.Unmarshal(frame, &out); err != nil {
		return false
	}
	f.frames = append(f.frames, out)
	return true
}

func (f *fakeConn) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		names = append(names, fr.Event)
	}
	return names
}

func (f *fakeConn) last() matchdto.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[len(f.frames)-1]
}

type harness struct {
	ctx   context.Context
	clock *clock.Manual
	svc   *coordinator.Service
	conns *ConnManager
	disp  *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewManual(t0)
	svc := coordinator.NewService(registry.NewMemory(), rules.NewStandard(), coordinator.WithClock(clk))
	conns := NewConnManager()
	return &harness{ctx: context.Background(), clock: clk, svc: svc, conns: conns, disp: NewDispatcher(svc, conns)}
}

// started returns a PLAYING match (alice white, bob black) and joined connections for both seats.
func (h *harness) started(t *testing.T) (*match.Match, *fakeConn, *fakeConn) {
	t.Helper()
	m, err := h.svc.CreateMatch(h.ctx, alice, clock.Default())
	require.NoError(t, err)
	m, err = h.svc.JoinMatch(h.ctx, m.ID, bob)
	require.NoError(t, err)

	a, b := newFakeConn("conn-a", 32), newFakeConn("conn-b", 32)
	h.conns.Register(a)
	h.conns.Register(b)
	require.NoError(t, h.disp.Dispatch(h.ctx, a.id, alice, JoinChannel{MatchID: m.ID}))
	require.NoError(t, h.disp.Dispatch(h.ctx, b.id, bob, JoinChannel{MatchID: m.ID}))
	return m, a, b
}
