package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/park285/cheese-arena/internal/match"
)

var (
	ErrNotFound          = errors.New("match not found")
	ErrConflict          = errors.New("match was modified concurrently")
	ErrFinished          = errors.New("match already finished")
	ErrPlayerBusy        = errors.New("player already bound to an active match")
	ErrNotWaiting        = errors.New("match is not waiting")
	ErrDuplicate         = errors.New("match id already exists")
	ErrInvalidMatch      = errors.New("invalid match record")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid status")
)

const (
	DefaultPageSize = 9
	MaxPageSize     = 100
)

// Registry is the authoritative store of matches keyed by id.
//
// Update is an atomic read-modify-write on one id: fn mutates a private copy, and the copy is
// written only when nothing else wrote the match in between. A lost race yields ErrConflict;
// there is no retry. Seating a new player claims that player's active slot and finishing a
// match releases the slots of both seats.
type Registry interface {
	Create(ctx context.Context, m *match.Match) error
	Get(ctx context.Context, id string) (*match.Match, error)
	Update(ctx context.Context, id string, fn func(*match.Match) error) (*match.Match, error)
	FindWaitingByOwner(ctx context.Context, playerID string) (*match.Match, error)
	FindActiveByPlayer(ctx context.Context, playerID string) (*match.Match, error)
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status match.Status, page, pageSize int) (Page, error)
	// ListByPlayer lists every match playerID was seated in, newest first. status may be
	// match.StatusAll or "" to skip the status filter.
	ListByPlayer(ctx context.Context, playerID string, status match.Status, page, pageSize int) (Page, error)
}

// Page is one slice of a newest-first listing.
type Page struct {
	Items    []*match.Match `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// NormalizePage clamps paging input to 1-based pages of at most MaxPageSize items.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// checkFilter validates a ListByPlayer status filter.
func checkFilter(status match.Status) error {
	if status == "" || status == match.StatusAll || status.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

func filterMatches(status match.Status, s match.Status) bool {
	return status == "" || status == match.StatusAll || status == s
}

// pageOf sorts items newest first (id desc on ties) and cuts out one page.
func pageOf(items []*match.Match, page, pageSize int) Page {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	out := Page{Total: int64(len(items)), Page: page, PageSize: pageSize, Items: []*match.Match{}}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return out
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	out.Items = items[start:end]
	return out
}

func statusRank(s match.Status) int {
	switch s {
	case match.StatusWaiting:
		return 0
	case match.StatusPlaying:
		return 1
	case match.StatusFinished:
		return 2
	}
	return -1
}

// checkWrite enforces the storage-level constraints of a write: identity is fixed, status only
// moves forward, and a seat once filled is never reassigned.
func checkWrite(cur, next *match.Match) error {
	if next.ID != cur.ID {
		return fmt.Errorf("%w: id changed from %s to %s", ErrInvalidMatch, cur.ID, next.ID)
	}
	if !next.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, next.Status)
	}
	if statusRank(next.Status) < statusRank(cur.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, next.Status)
	}
	if next.WhitePlayerID != cur.WhitePlayerID {
		return fmt.Errorf("%w: white seat reassigned", ErrInvalidMatch)
	}
	if cur.BlackPlayerID != "" && next.BlackPlayerID != cur.BlackPlayerID {
		return fmt.Errorf("%w: black seat reassigned", ErrInvalidMatch)
	}
	if next.BlackPlayerID != "" && next.BlackPlayerID == next.WhitePlayerID {
		return fmt.Errorf("%w: same player in both seats", ErrInvalidMatch)
	}
	return nil
}

func checkCreate(m *match.Match) error {
	if m == nil || m.ID == "" || m.WhitePlayerID == "" {
		return fmt.Errorf("%w: id and white player required", ErrInvalidMatch)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, m.Status)
	}
	return nil
}

// newSeats returns the players a write seats for the first time.
func newSeats(cur, next *match.Match) []string {
	if cur == nil {
		return next.Players()
	}
	if cur.BlackPlayerID == "" && next.BlackPlayerID != "" {
		return []string{next.BlackPlayerID}
	}
	return nil
}

// seatClaims returns the players whose active slot a write must take.
func seatClaims(cur, next *match.Match) []string {
	if !next.Status.Active() {
		return nil
	}
	if cur == nil {
		return next.Players()
	}
	if cur.BlackPlayerID == "" && next.BlackPlayerID != "" {
		return []string{next.BlackPlayerID}
	}
	return nil
}
