package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

// Event is one broadcast to a match channel.
type Event struct {
	Name    string
	MatchID string
	Data    any
}

// Frame encodes the event as the outbound JSON envelope.
func (e Event) Frame() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Name, err)
	}
	return json.Marshal(matchdto.Outbound{Event: e.Name, MatchID: e.MatchID, Data: data})
}

func UpdateBoardEvent(m *match.Match) Event {
	return Event{Name: matchdto.EventUpdateBoard, MatchID: m.ID, Data: matchdto.UpdateBoard{Position: m.Position}}
}

// GameOverEvent carries a nil winner for draws.
func GameOverEvent(m *match.Match) Event {
	return Event{
		Name:    matchdto.EventGameOver,
		MatchID: m.ID,
		Data:    matchdto.GameOver{WinnerID: m.WinnerID, Reason: string(m.EndReason)},
	}
}

func DrawOfferedEvent(matchID, offererID string) Event {
	return Event{Name: matchdto.EventDrawOffered, MatchID: matchID, Data: matchdto.DrawOffered{OffererID: offererID}}
}

func ChatReceivedEvent(msg *match.ChatMessage) Event {
	return Event{
		Name:    matchdto.EventChatReceived,
		MatchID: msg.MatchID,
		Data: matchdto.ChatReceived{
			Username:  msg.Username,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		},
	}
}

func matchView(m *match.Match) matchdto.Match {
	return matchdto.Match{
		ID:               m.ID,
		WhitePlayerID:    m.WhitePlayerID,
		WhiteUsername:    m.WhiteName,
		BlackPlayerID:    m.BlackPlayerID,
		BlackUsername:    m.BlackName,
		FEN:              m.Position,
		Status:           string(m.Status),
		WinnerID:         m.WinnerID,
		EndReason:        string(m.EndReason),
		WhiteRemainingMs: m.WhiteRemainingMs,
		BlackRemainingMs: m.BlackRemainingMs,
		IncrementMs:      m.IncrementMs,
		TimeLimitMs:      m.TimeLimitMs,
		LastMoveAt:       m.LastMoveAt,
		MoveHistory:      m.MoveHistory,
		StartedAt:        m.StartedAt,
		CreatedAt:        m.CreatedAt,
		FinishedAt:       m.FinishedAt,
	}
}

func chatView(msg match.ChatMessage) matchdto.ChatMessage {
	return matchdto.ChatMessage{
		ID:        msg.ID,
		MatchID:   msg.MatchID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}
