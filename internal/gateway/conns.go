package gateway

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
)

var ErrUnknownConn = errors.New("unknown connection")

// Conn is a registered subscriber. Send must not block; it reports false when the frame
// could not be queued.
type Conn interface {
	ID() string
	Send(frame []byte) bool
}

// ConnManager tracks live connections and the match channels they joined.
// Delivery is at most once: a connection that cannot take a frame misses it.
type ConnManager struct {
	mu       sync.RWMutex
	conns    map[string]Conn
	channels map[string]map[string]struct{} // match id -> conn ids
	joined   map[string]map[string]struct{} // conn id -> match ids
}

func NewConnManager() *ConnManager {
	return &ConnManager{
		conns:    make(map[string]Conn),
		channels: make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
	}
}

func (m *ConnManager) Register(c Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.ID()] = c
	if _, ok := m.joined[c.ID()]; !ok {
		m.joined[c.ID()] = make(map[string]struct{})
	}
}

// Unregister drops the connection from every channel it joined.
func (m *ConnManager) Unregister(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for matchID := range m.joined[connID] {
		m.leaveLocked(connID, matchID)
	}
	delete(m.joined, connID)
	delete(m.conns, connID)
}

func (m *ConnManager) Join(connID, matchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[connID]; !ok {
		return ErrUnknownConn
	}
	members, ok := m.channels[matchID]
	if !ok {
		members = make(map[string]struct{})
		m.channels[matchID] = members
	}
	members[connID] = struct{}{}
	m.joined[connID][matchID] = struct{}{}
	return nil
}

func (m *ConnManager) Leave(connID, matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(connID, matchID)
}

func (m *ConnManager) leaveLocked(connID, matchID string) {
	if members, ok := m.channels[matchID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.channels, matchID)
		}
	}
	if js, ok := m.joined[connID]; ok {
		delete(js, matchID)
	}
}

// Members returns the number of connections joined to matchID.
func (m *ConnManager) Members(matchID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels[matchID])
}

// BroadcastTo sends ev to every connection joined to matchID and returns how many accepted it.
// A cancelled ctx sends nothing, so the dispatcher passes a context detached from the sender.
func (m *ConnManager) BroadcastTo(ctx context.Context, matchID string, ev Event) int {
	if ctx.Err() != nil {
		return 0
	}
	frame, err := ev.Frame()
	if err != nil {
		obslog.L().Error("gateway_encode_error", zap.String("event", ev.Name), zap.Error(err))
		return 0
	}

	m.mu.RLock()
	targets := make([]Conn, 0, len(m.channels[matchID]))
	for id := range m.channels[matchID] {
		if c, ok := m.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.Send(frame) {
			sent++
			continue
		}
		obslog.L().Warn("gateway_broadcast_drop",
			zap.String("conn_id", c.ID()),
			zap.String("match_id", matchID),
			zap.String("event", ev.Name),
		)
	}
	return sent
}
