package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
)

// CreateMatch opens a WAITING match with the requester seated white.
func (s *Service) CreateMatch(ctx context.Context, requester match.Player, cfg clock.Config) (*match.Match, error) {
	requester.ID = strings.TrimSpace(requester.ID)
	if requester.ID == "" {
		return nil, fmt.Errorf("create match: requester required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClock, err)
	}
	active, err := s.reg.FindActiveByPlayer(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	if active != nil {
		return nil, ErrAlreadyActive
	}

	now := s.clock.Now()
	limit := cfg.TimeLimit.Milliseconds()
	m := &match.Match{
		ID:               uuid.NewString(),
		WhitePlayerID:    requester.ID,
		WhiteName:        strings.TrimSpace(requester.Name),
		Position:         match.StartPosition,
		Status:           match.StatusWaiting,
		WhiteRemainingMs: limit,
		BlackRemainingMs: limit,
		IncrementMs:      cfg.Increment.Milliseconds(),
		TimeLimitMs:      limit,
		CreatedAt:        now,
	}
	if err := s.reg.Create(ctx, m); err != nil {
		if errors.Is(err, registry.ErrPlayerBusy) {
			return nil, ErrAlreadyActive
		}
		// a concurrent create by the same player won the slot
		if errors.Is(err, registry.ErrConflict) {
			if won, ferr := s.reg.FindActiveByPlayer(ctx, requester.ID); ferr == nil && won != nil {
				return nil, ErrAlreadyActive
			}
		}
		return nil, fmt.Errorf("create match: %w", err)
	}
	obslog.L().Info("match_create",
		zap.String("match_id", m.ID),
		zap.String("white_id", m.WhitePlayerID),
		zap.Int64("time_limit_ms", limit),
		zap.Int64("increment_ms", m.IncrementMs),
	)
	return m.Clone(), nil
}

// JoinMatch seats the requester black and starts the match.
func (s *Service) JoinMatch(ctx context.Context, matchID string, requester match.Player) (*match.Match, error) {
	requester.ID = strings.TrimSpace(requester.ID)
	if requester.ID == "" {
		return nil, fmt.Errorf("join match: requester required")
	}
	active, err := s.reg.FindActiveByPlayer(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("join match: %w", err)
	}
	if active != nil && active.ID != matchID {
		return nil, ErrAlreadyActive
	}

	m, err := s.reg.Update(ctx, matchID, func(m *match.Match) error {
		if m.Status != match.StatusWaiting {
			return ErrNotWaiting
		}
		if m.WhitePlayerID == requester.ID {
			return ErrSelfJoin
		}
		now := s.clock.Now()
		m.BlackPlayerID = requester.ID
		m.BlackName = strings.TrimSpace(requester.Name)
		m.Status = match.StatusPlaying
		m.StartedAt = &now
		m.LastMoveAt = &now
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrNotFound):
		return nil, ErrMatchNotFound
	case errors.Is(err, registry.ErrFinished):
		return nil, ErrNotWaiting
	case errors.Is(err, registry.ErrPlayerBusy):
		return nil, ErrAlreadyActive
	case errors.Is(err, ErrNotWaiting), errors.Is(err, ErrSelfJoin):
		return nil, err
	default:
		return nil, fmt.Errorf("join match: %w", err)
	}
	obslog.L().Info("match_join",
		zap.String("match_id", m.ID),
		zap.String("white_id", m.WhitePlayerID),
		zap.String("black_id", m.BlackPlayerID),
	)
	return m, nil
}

// CancelMatch deletes a WAITING match on behalf of its owner.
func (s *Service) CancelMatch(ctx context.Context, matchID, requesterID string) error {
	m, err := s.Match(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Status != match.StatusWaiting {
		return ErrNotWaiting
	}
	if m.WhitePlayerID != strings.TrimSpace(requesterID) {
		return ErrNotOwner
	}
	if err := s.reg.Delete(ctx, matchID); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			return ErrMatchNotFound
		case errors.Is(err, registry.ErrNotWaiting):
			return ErrNotWaiting
		}
		return fmt.Errorf("cancel match: %w", err)
	}
	obslog.L().Info("match_cancel", zap.String("match_id", matchID), zap.String("owner_id", requesterID))
	return nil
}

// Match returns the match by id.
func (s *Service) Match(ctx context.Context, matchID string) (*match.Match, error) {
	m, err := s.reg.Get(ctx, matchID)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// ActiveMatch returns the WAITING or PLAYING match of playerID, or nil.
func (s *Service) ActiveMatch(ctx context.Context, playerID string) (*match.Match, error) {
	m, err := s.reg.FindActiveByPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("active match: %w", err)
	}
	return m, nil
}

// Matches lists matches in one status, newest first.
func (s *Service) Matches(ctx context.Context, status match.Status, page, pageSize int) (registry.Page, error) {
	return s.reg.ListByStatus(ctx, status, page, pageSize)
}

// PlayerMatches lists the matches playerID was seated in, newest first.
// match.StatusAll or "" returns every status.
func (s *Service) PlayerMatches(ctx context.Context, playerID string, status match.Status, page, pageSize int) (registry.Page, error) {
	return s.reg.ListByPlayer(ctx, playerID, status, page, pageSize)
}

// DrawEligible reports whether playerID may offer or answer a draw in matchID.
func (s *Service) DrawEligible(ctx context.Context, matchID, playerID string) (bool, error) {
	m, err := s.Match(ctx, matchID)
	if errors.Is(err, ErrMatchNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Status == match.StatusPlaying && m.SeatOf(playerID) != "", nil
}
