package matchdto

import "time"

// MatchResult is posted to the result webhook when a match finishes.
type MatchResult struct {
	MatchID       string    `json:"match_id"`
	WhitePlayerID string    `json:"white_player_id"`
	BlackPlayerID string    `json:"black_player_id"`
	WinnerID      *string   `json:"winner_id"`
	Reason        string    `json:"reason"`
	FEN           string    `json:"fen"`
	MoveHistory   string    `json:"move_history"`
	FinishedAt    time.Time `json:"finished_at"`
}
