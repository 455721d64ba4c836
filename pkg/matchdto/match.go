package matchdto

import "time"

// Match is the public view of a match.
type Match struct {
	ID               string     `json:"id"`
	WhitePlayerID    string     `json:"white_player_id"`
	WhiteUsername    string     `json:"white_username,omitempty"`
	BlackPlayerID    string     `json:"black_player_id,omitempty"`
	BlackUsername    string     `json:"black_username,omitempty"`
	FEN              string     `json:"fen"`
	Status           string     `json:"status"`
	WinnerID         *string    `json:"winner_id"`
	EndReason        string     `json:"end_reason,omitempty"`
	WhiteRemainingMs int64      `json:"white_time_remaining_ms"`
	BlackRemainingMs int64      `json:"black_time_remaining_ms"`
	IncrementMs      int64      `json:"increment_ms"`
	TimeLimitMs      int64      `json:"time_limit_ms"`
	LastMoveAt       *time.Time `json:"last_move_at"`
	MoveHistory      string     `json:"move_history"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

type MatchPage struct {
	Items    []Match `json:"items"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateMatchRequest carries clock settings; nil fields take the defaults (10 minutes, no increment).
type CreateMatchRequest struct {
	TimeLimitMinutes *int `json:"time_limit_minutes,omitempty"`
	IncrementSeconds *int `json:"increment_seconds,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
