package coordinator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/chat"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
)

// PostChat stores a chat line for an existing match. Blank content returns chat.ErrEmpty.
func (s *Service) PostChat(ctx context.Context, matchID string, author match.Player, content string) (*match.ChatMessage, error) {
	if _, err := s.Match(ctx, matchID); err != nil {
		return nil, err
	}
	msg, err := chat.NewMessage(matchID, author, content, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.chat.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("post chat: %w", err)
	}
	obslog.L().Debug("match_chat", zap.String("match_id", matchID), zap.String("user_id", author.ID))
	return msg, nil
}

// Messages returns the chat history of a match, oldest first.
func (s *Service) Messages(ctx context.Context, matchID string) ([]match.ChatMessage, error) {
	msgs, err := s.chat.List(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	return msgs, nil
}
