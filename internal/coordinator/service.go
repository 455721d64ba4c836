package coordinator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/chat"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/rules"
)

var (
	ErrAlreadyActive = errors.New("player already has an active match")
	ErrNotWaiting    = errors.New("match is not waiting for an opponent")
	ErrSelfJoin      = errors.New("cannot join own match")
	ErrNotOwner      = errors.New("only the match owner may do this")
	ErrMatchNotFound = errors.New("match not found")
	ErrInvalidClock  = errors.New("invalid clock settings")
)

// IncrementPolicy decides whether the per-move increment is credited to the mover.
type IncrementPolicy int

const (
	// IncrementIgnore stores the increment but never credits it.
	IncrementIgnore IncrementPolicy = iota
	// IncrementCredit adds the increment to the mover's clock after each accepted move.
	IncrementCredit
)

// ParseIncrementPolicy maps "credit" to IncrementCredit; anything else is IncrementIgnore.
func ParseIncrementPolicy(s string) IncrementPolicy {
	if s == "credit" {
		return IncrementCredit
	}
	return IncrementIgnore
}

// FinishHook observes every transition into FINISHED. Errors are logged, never propagated.
type FinishHook interface {
	MatchFinished(ctx context.Context, m *match.Match) error
}

// FinishHookFunc adapts a function to FinishHook.
type FinishHookFunc func(ctx context.Context, m *match.Match) error

func (f FinishHookFunc) MatchFinished(ctx context.Context, m *match.Match) error { return f(ctx, m) }

// Service owns match lifecycle: session guard, move pipeline and chat.
type Service struct {
	reg       registry.Registry
	engine    rules.Engine
	chat      chat.Store
	clock     clock.Clock
	increment IncrementPolicy
	hooks     []FinishHook
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithIncrementPolicy(p IncrementPolicy) Option { return func(s *Service) { s.increment = p } }

func WithFinishHooks(h ...FinishHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h...) }
}

func WithChatStore(c chat.Store) Option { return func(s *Service) { s.chat = c } }

func NewService(reg registry.Registry, engine rules.Engine, opts ...Option) *Service {
	s := &Service{
		reg:    reg,
		engine: engine,
		clock:  clock.Real{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.chat == nil {
		s.chat = chat.NewMemory()
	}
	return s
}

func (s *Service) finished(ctx context.Context, m *match.Match) {
	winner := ""
	if m.WinnerID != nil {
		winner = *m.WinnerID
	}
	obslog.L().Info("match_finished",
		zap.String("match_id", m.ID),
		zap.String("winner_id", winner),
		zap.String("reason", string(m.EndReason)),
	)
	for _, h := range s.hooks {
		if err := h.MatchFinished(ctx, m.Clone()); err != nil {
			obslog.L().Warn("match_finish_hook_error", zap.String("match_id", m.ID), zap.Error(err))
		}
	}
}
