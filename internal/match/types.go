package match

import (
	"time"
)

// StartPosition is the standard initial FEN.
const StartPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ResignMarker is appended to the move history when a player resigns.
const ResignMarker = "(Resign)"

// Color identifies a seat.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other seat color.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Status represents the match lifecycle state.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusPlaying  Status = "PLAYING"
	StatusFinished Status = "FINISHED"

	// StatusAll is a listing filter matching every status. It is never stored.
	StatusAll Status = "ALL"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusPlaying, StatusFinished:
		return true
	}
	return false
}

// Active reports whether the status still binds its players.
func (s Status) Active() bool { return s == StatusWaiting || s == StatusPlaying }

// EndReason explains why a match finished.
type EndReason string

const (
	EndCheckmate            EndReason = "checkmate"
	EndStalemate            EndReason = "stalemate"
	EndInsufficientMaterial EndReason = "insufficient_material"
	EndFiftyMove            EndReason = "fifty_move"
	EndTimeout              EndReason = "timeout"
	EndResignation          EndReason = "resignation"
	EndAgreement            EndReason = "agreement"
)

// Match is the persisted aggregate of a two-player timed match.
type Match struct {
	ID               string     `json:"id"`
	WhitePlayerID    string     `json:"white_player_id"`
	WhiteName        string     `json:"white_name,omitempty"`
	BlackPlayerID    string     `json:"black_player_id,omitempty"`
	BlackName        string     `json:"black_name,omitempty"`
	Position         string     `json:"position"`
	MoveHistory      string     `json:"move_history"`
	Status           Status     `json:"status"`
	WinnerID         *string    `json:"winner_id,omitempty"`
	EndReason        EndReason  `json:"end_reason,omitempty"`
	WhiteRemainingMs int64      `json:"white_remaining_ms"`
	BlackRemainingMs int64      `json:"black_remaining_ms"`
	IncrementMs      int64      `json:"increment_ms"`
	TimeLimitMs      int64      `json:"time_limit_ms"`
	LastMoveAt       *time.Time `json:"last_move_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Version          int64      `json:"version"`
}

// Clone returns a deep copy so callers never share pointer fields.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	if m.WinnerID != nil {
		w := *m.WinnerID
		c.WinnerID = &w
	}
	if m.LastMoveAt != nil {
		t := *m.LastMoveAt
		c.LastMoveAt = &t
	}
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.FinishedAt != nil {
		t := *m.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// SeatOf returns the color held by playerID, or "" when not seated.
func (m *Match) SeatOf(playerID string) Color {
	if playerID == "" {
		return ""
	}
	if m.WhitePlayerID == playerID {
		return White
	}
	if m.BlackPlayerID == playerID {
		return Black
	}
	return ""
}

// PlayerAt returns the player id seated at c.
func (m *Match) PlayerAt(c Color) string {
	if c == White {
		return m.WhitePlayerID
	}
	return m.BlackPlayerID
}

// RemainingMs returns the clock of seat c.
func (m *Match) RemainingMs(c Color) int64 {
	if c == White {
		return m.WhiteRemainingMs
	}
	return m.BlackRemainingMs
}

// SetRemainingMs stores the clock of seat c.
func (m *Match) SetRemainingMs(c Color, ms int64) {
	if c == White {
		m.WhiteRemainingMs = ms
		return
	}
	m.BlackRemainingMs = ms
}

// Finish moves the match into FINISHED. winner == "" records a draw.
func (m *Match) Finish(winner string, reason EndReason, at time.Time) {
	m.Status = StatusFinished
	m.WinnerID = nil
	if winner != "" {
		w := winner
		m.WinnerID = &w
	}
	m.EndReason = reason
	t := at
	m.FinishedAt = &t
}

// IsDraw reports a finished match without a winner.
func (m *Match) IsDraw() bool { return m.Status == StatusFinished && m.WinnerID == nil }

// Players returns the non-empty seated ids.
func (m *Match) Players() []string {
	out := make([]string, 0, 2)
	if m.WhitePlayerID != "" {
		out = append(out, m.WhitePlayerID)
	}
	if m.BlackPlayerID != "" {
		out = append(out, m.BlackPlayerID)
	}
	return out
}

// ChatMessage is an append-only chat line bound to a match.
type ChatMessage struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Player is an authenticated caller.
type Player struct {
	ID   string
	Name string
}
