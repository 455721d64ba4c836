package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-arena/internal/match"
)

// MaxContentRunes bounds a single chat line.
const MaxContentRunes = 500

var ErrEmpty = errors.New("empty chat message")

// Store is the append-only chat log of matches.
type Store interface {
	Append(ctx context.Context, msg *match.ChatMessage) error
	List(ctx context.Context, matchID string) ([]match.ChatMessage, error)
}

// NewMessage trims content, truncates it to MaxContentRunes and stamps id and time.
// Blank content yields ErrEmpty.
func NewMessage(matchID string, author match.Player, content string, now time.Time) (*match.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmpty
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		content = string([]rune(content)[:MaxContentRunes])
	}
	return &match.ChatMessage{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		UserID:    author.ID,
		Username:  author.Name,
		Content:   content,
		CreatedAt: now.UTC(),
	}, nil
}

// Redis keeps each match's chat as a JSON list under <prefix>:chat:<match id>.
type Redis struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	ttl    time.Duration
}

// NewRedis keeps at most limit messages per match (0 for unbounded); ttl 0 never expires.
func NewRedis(rdb *redis.Client, prefix string, limit int64, ttl time.Duration) *Redis {
	if strings.TrimSpace(prefix) == "" {
		prefix = "arena"
	}
	return &Redis{rdb: rdb, prefix: prefix, limit: limit, ttl: ttl}
}

var _ Store = (*Redis)(nil)

func (s *Redis) key(matchID string) string { return s.prefix + ":chat:" + strings.TrimSpace(matchID) }

func (s *Redis) Append(ctx context.Context, msg *match.ChatMessage) error {
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return ErrEmpty
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	k := s.key(msg.MatchID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, k, raw)
	if s.limit > 0 {
		pipe.LTrim(ctx, k, -s.limit, -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

// List returns messages oldest first.
func (s *Redis) List(ctx context.Context, matchID string) ([]match.ChatMessage, error) {
	raws, err := s.rdb.LRange(ctx, s.key(matchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list chat: %w", err)
	}
	out := make([]match.ChatMessage, 0, len(raws))
	for _, raw := range raws {
		var m match.ChatMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu   sync.RWMutex
	logs map[string][]match.ChatMessage
}

func NewMemory() *Memory { return &Memory{logs: make(map[string][]match.ChatMessage)} }

var _ Store = (*Memory)(nil)

func (s *Memory) Append(ctx context.Context, msg *match.ChatMessage) error {
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return ErrEmpty
	}
	s.mu.Lock()
	s.logs[msg.MatchID] = append(s.logs[msg.MatchID], *msg)
	s.mu.Unlock()
	return nil
}

func (s *Memory) List(ctx context.Context, matchID string) ([]match.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]match.ChatMessage{}, s.logs[matchID]...), nil
}
