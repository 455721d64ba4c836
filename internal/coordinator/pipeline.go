package coordinator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/termination"
)

var tokenPattern = regexp.MustCompile(`(?i)^[a-h][1-8][a-h][1-8][qrbn]?$`)

// Rejection names why an operation was refused without changing the match.
type Rejection string

const (
	RejectNone        Rejection = ""
	RejectNotFound    Rejection = "not_found"
	RejectNotPlaying  Rejection = "not_playing"
	RejectFinished    Rejection = "finished"
	RejectNotSeated   Rejection = "not_seated"
	RejectNotYourTurn Rejection = "not_your_turn"
	RejectMalformed   Rejection = "malformed"
	RejectIllegal     Rejection = "illegal"
	RejectConflict    Rejection = "conflict"
)

func (r Rejection) Error() string { return "rejected: " + string(r) }

// Result is the outcome of a pipeline operation.
// Match is the committed state when Accepted, nil otherwise.
type Result struct {
	Accepted  bool
	Rejection Rejection
	Match     *match.Match
}

// Finished reports an accepted operation that ended the match.
func (r Result) Finished() bool {
	return r.Accepted && r.Match != nil && r.Match.Status == match.StatusFinished
}

// MakeMove validates and applies token for requesterID. Domain rejections and lost races
// return false with a nil error.
func (s *Service) MakeMove(ctx context.Context, matchID, token, requesterID string) (bool, error) {
	res, err := s.Play(ctx, matchID, token, requesterID)
	return res.Accepted, err
}

// Play is MakeMove returning the committed state.
func (s *Service) Play(ctx context.Context, matchID, token, requesterID string) (Result, error) {
	token = strings.TrimSpace(token)
	m, err := s.reg.Update(ctx, matchID, func(m *match.Match) error {
		if m.Status != match.StatusPlaying {
			return RejectNotPlaying
		}
		seat := m.SeatOf(requesterID)
		if seat == "" {
			return RejectNotSeated
		}
		pos, err := s.engine.LoadPosition(m.Position)
		if err != nil {
			return fmt.Errorf("load position of %s: %w", m.ID, err)
		}
		if s.engine.WhoseTurn(pos) != seat {
			return RejectNotYourTurn
		}
		if !tokenPattern.MatchString(token) {
			return RejectMalformed
		}
		mv, err := s.engine.ParseMove(token, seat)
		if err != nil {
			return RejectMalformed
		}
		if !s.engine.IsLegal(pos, mv) {
			return RejectIllegal
		}

		now := s.clock.Now()
		charge := clock.Charge(m.RemainingMs(seat), m.LastMoveAt, now)
		m.SetRemainingMs(seat, charge.RemainingMs)
		if charge.Expired {
			m.Finish(m.PlayerAt(seat.Opponent()), match.EndTimeout, now)
			return nil
		}
		m.LastMoveAt = &now
		s.creditIncrement(m, seat)

		next, err := s.engine.Apply(pos, mv)
		if err != nil {
			return fmt.Errorf("apply %s to %s: %w", mv.Token(), m.ID, err)
		}
		m.Position = s.engine.Serialize(next)
		m.MoveHistory += mv.Token() + " "

		if out := termination.Detect(s.engine, next); out.Terminal {
			winner := ""
			if out.Winner != "" {
				winner = m.PlayerAt(out.Winner)
			}
			m.Finish(winner, out.Reason, now)
		}
		return nil
	})
	res, err := s.settle(ctx, "match_move", matchID, requesterID, m, err)
	if res.Accepted {
		obslog.L().Info("match_move",
			zap.String("match_id", matchID),
			zap.String("player_id", requesterID),
			zap.String("token", strings.ToLower(token)),
			zap.String("status", string(res.Match.Status)),
		)
	}
	return res, err
}

// creditIncrement applies the configured increment policy to the mover's clock.
func (s *Service) creditIncrement(m *match.Match, seat match.Color) {
	if s.increment != IncrementCredit {
		return
	}
	m.SetRemainingMs(seat, clock.Credit(m.RemainingMs(seat), m.IncrementMs))
}

// Resign ends a PLAYING match in favour of the requester's opponent.
func (s *Service) Resign(ctx context.Context, matchID, requesterID string) (bool, error) {
	res, err := s.ResignMatch(ctx, matchID, requesterID)
	return res.Accepted, err
}

func (s *Service) ResignMatch(ctx context.Context, matchID, requesterID string) (Result, error) {
	m, err := s.reg.Update(ctx, matchID, func(m *match.Match) error {
		if m.Status != match.StatusPlaying {
			return RejectNotPlaying
		}
		seat := m.SeatOf(requesterID)
		if seat == "" {
			return RejectNotSeated
		}
		m.MoveHistory += match.ResignMarker + " "
		m.Finish(m.PlayerAt(seat.Opponent()), match.EndResignation, s.clock.Now())
		return nil
	})
	return s.settle(ctx, "match_resign", matchID, requesterID, m, err)
}

// AcceptDraw ends a PLAYING match without a winner.
func (s *Service) AcceptDraw(ctx context.Context, matchID string) (bool, error) {
	res, err := s.AgreeDraw(ctx, matchID)
	return res.Accepted, err
}

func (s *Service) AgreeDraw(ctx context.Context, matchID string) (Result, error) {
	m, err := s.reg.Update(ctx, matchID, func(m *match.Match) error {
		if m.Status != match.StatusPlaying {
			return RejectNotPlaying
		}
		m.Finish("", match.EndAgreement, s.clock.Now())
		return nil
	})
	return s.settle(ctx, "match_draw", matchID, "", m, err)
}

// settle maps a registry outcome to a Result and runs finish hooks.
func (s *Service) settle(ctx context.Context, event, matchID, playerID string, m *match.Match, err error) (Result, error) {
	if err == nil {
		if m.Status == match.StatusFinished {
			s.finished(ctx, m)
		}
		return Result{Accepted: true, Match: m}, nil
	}

	var rej Rejection
	switch {
	case errors.As(err, &rej):
	case errors.Is(err, registry.ErrNotFound):
		rej = RejectNotFound
	case errors.Is(err, registry.ErrFinished):
		rej = RejectFinished
	case errors.Is(err, registry.ErrConflict):
		rej = RejectConflict
		obslog.L().Warn(event+"_conflict", zap.String("match_id", matchID), zap.String("player_id", playerID))
		return Result{Rejection: rej}, nil
	default:
		obslog.L().Error(event+"_error", zap.String("match_id", matchID), zap.Error(err))
		return Result{}, err
	}
	obslog.L().Debug(event+"_rejected",
		zap.String("match_id", matchID),
		zap.String("player_id", playerID),
		zap.String("reason", string(rej)),
	)
	return Result{Rejection: rej}, nil
}
