package matchdto

import (
	"encoding/json"
	"time"
)

// Operation names accepted on the websocket.
const (
	OpJoinChannel  = "JoinChannel"
	OpLeaveChannel = "LeaveChannel"
	OpSendMove     = "SendMove"
	OpResign       = "Resign"
	OpOfferDraw    = "OfferDraw"
	OpRespondDraw  = "RespondDraw"
	OpSendChat     = "SendChat"
)

// Event names pushed to subscribers.
const (
	EventUpdateBoard  = "UpdateBoard"
	EventGameOver     = "GameOver"
	EventDrawOffered  = "DrawOffered"
	EventChatReceived = "ChatReceived"
)

// Inbound is the client → server frame.
type Inbound struct {
	Op      string `json:"op"`
	MatchID string `json:"match_id"`
	Move    string `json:"move,omitempty"`
	Accept  bool   `json:"accept,omitempty"`
	Content string `json:"content,omitempty"`
}

// Outbound is the server → client frame.
type Outbound struct {
	Event   string          `json:"event"`
	MatchID string          `json:"match_id"`
	Data    json.RawMessage `json:"data"`
}

type UpdateBoard struct {
	Position string `json:"position"`
}

type GameOver struct {
	WinnerID *string `json:"winner_id"`
	Reason   string  `json:"reason,omitempty"`
}

type DrawOffered struct {
	OffererID string `json:"offerer_id"`
}

type ChatReceived struct {
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
