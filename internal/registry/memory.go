package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/park285/cheese-arena/internal/match"
)

// Memory is an in-process Registry used for development and tests when no Redis is configured.
// Records are copied on the way in and out so callers never alias stored state.
type Memory struct {
	mu sync.RWMutex

	byID  map[string]*match.Match
	slots map[string]string // player id -> match id
}

func NewMemory() *Memory {
	return &Memory{
		byID:  make(map[string]*match.Match),
		slots: make(map[string]string),
	}
}

var _ Registry = (*Memory)(nil)

func (m *Memory) Create(ctx context.Context, rec *match.Match) error {
	if err := checkCreate(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[rec.ID]; exists {
		return ErrDuplicate
	}
	claims := seatClaims(nil, rec)
	for _, p := range claims {
		if m.slotBusyLocked(p, rec.ID) {
			return ErrPlayerBusy
		}
	}
	rec.Version = 1
	m.byID[rec.ID] = rec.Clone()
	for _, p := range claims {
		m.slots[p] = rec.ID
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*match.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Update runs fn outside the lock and commits only if the stored version is unchanged.
func (m *Memory) Update(ctx context.Context, id string, fn func(*match.Match) error) (*match.Match, error) {
	cur, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == match.StatusFinished {
		return nil, ErrFinished
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := checkWrite(cur, next); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byID[cur.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if stored.Version != cur.Version {
		return nil, ErrConflict
	}
	claims := seatClaims(cur, next)
	for _, p := range claims {
		if m.slotBusyLocked(p, cur.ID) {
			return nil, ErrPlayerBusy
		}
	}
	next.Version = cur.Version + 1
	m.byID[cur.ID] = next.Clone()
	for _, p := range claims {
		m.slots[p] = cur.ID
	}
	if next.Status == match.StatusFinished {
		m.releaseLocked(next)
	}
	return next, nil
}

func (m *Memory) FindWaitingByOwner(ctx context.Context, playerID string) (*match.Match, error) {
	rec, err := m.FindActiveByPlayer(ctx, playerID)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Status != match.StatusWaiting || rec.WhitePlayerID != strings.TrimSpace(playerID) {
		return nil, nil
	}
	return rec, nil
}

func (m *Memory) FindActiveByPlayer(ctx context.Context, playerID string) (*match.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.slots[strings.TrimSpace(playerID)]
	if !ok {
		return nil, nil
	}
	rec, ok := m.byID[id]
	if !ok || !rec.Status.Active() {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[strings.TrimSpace(id)]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != match.StatusWaiting {
		return ErrNotWaiting
	}
	m.releaseLocked(rec)
	delete(m.byID, rec.ID)
	return nil
}

func (m *Memory) ListByStatus(ctx context.Context, status match.Status, page, pageSize int) (Page, error) {
	if !status.Valid() {
		return Page{}, ErrInvalidStatus
	}
	page, pageSize = NormalizePage(page, pageSize)

	m.mu.RLock()
	items := make([]*match.Match, 0)
	for _, rec := range m.byID {
		if rec.Status == status {
			items = append(items, rec.Clone())
		}
	}
	m.mu.RUnlock()

	return pageOf(items, page, pageSize), nil
}

func (m *Memory) ListByPlayer(ctx context.Context, playerID string, status match.Status, page, pageSize int) (Page, error) {
	if err := checkFilter(status); err != nil {
		return Page{}, err
	}
	page, pageSize = NormalizePage(page, pageSize)
	playerID = strings.TrimSpace(playerID)

	m.mu.RLock()
	items := make([]*match.Match, 0)
	for _, rec := range m.byID {
		if playerID != "" && rec.SeatOf(playerID) != "" && filterMatches(status, rec.Status) {
			items = append(items, rec.Clone())
		}
	}
	m.mu.RUnlock()

	return pageOf(items, page, pageSize), nil
}

func (m *Memory) slotBusyLocked(playerID, matchID string) bool {
	id, ok := m.slots[playerID]
	if !ok || id == matchID {
		return false
	}
	rec, ok := m.byID[id]
	return ok && rec.Status.Active()
}

func (m *Memory) releaseLocked(rec *match.Match) {
	for _, p := range rec.Players() {
		if m.slots[p] == rec.ID {
			delete(m.slots, p)
		}
	}
}
