package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/chat"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/coordinator"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
)

// Service is the coordinator surface the gateway drives.
type Service interface {
	CreateMatch(ctx context.Context, requester match.Player, cfg clock.Config) (*match.Match, error)
	JoinMatch(ctx context.Context, matchID string, requester match.Player) (*match.Match, error)
	CancelMatch(ctx context.Context, matchID, requesterID string) error
	Match(ctx context.Context, matchID string) (*match.Match, error)
	ActiveMatch(ctx context.Context, playerID string) (*match.Match, error)
	Matches(ctx context.Context, status match.Status, page, pageSize int) (registry.Page, error)
	PlayerMatches(ctx context.Context, playerID string, status match.Status, page, pageSize int) (registry.Page, error)

	Play(ctx context.Context, matchID, token, requesterID string) (coordinator.Result, error)
	ResignMatch(ctx context.Context, matchID, requesterID string) (coordinator.Result, error)
	AgreeDraw(ctx context.Context, matchID string) (coordinator.Result, error)
	DrawEligible(ctx context.Context, matchID, playerID string) (bool, error)

	PostChat(ctx context.Context, matchID string, author match.Player, content string) (*match.ChatMessage, error)
	Messages(ctx context.Context, matchID string) ([]match.ChatMessage, error)
}

var _ Service = (*coordinator.Service)(nil)

// Dispatcher executes operations for an authenticated connection and fans results out.
type Dispatcher struct {
	svc   Service
	conns *ConnManager
}

func NewDispatcher(svc Service, conns *ConnManager) *Dispatcher {
	return &Dispatcher{svc: svc, conns: conns}
}

// Dispatch runs op on behalf of caller. Domain rejections are silent; only infrastructure
// failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, caller match.Player, op Operation) error {
	// fan-out reports committed state, so it outlives the caller's context
	out := context.WithoutCancel(ctx)
	switch o := op.(type) {
	case JoinChannel:
		return d.conns.Join(connID, o.MatchID)

	case LeaveChannel:
		d.conns.Leave(connID, o.MatchID)
		return nil

	case SendMove:
		res, err := d.svc.Play(ctx, o.MatchID, o.Move, caller.ID)
		if err != nil || !res.Accepted {
			return err
		}
		d.conns.BroadcastTo(out, o.MatchID, UpdateBoardEvent(res.Match))
		if res.Finished() {
			d.conns.BroadcastTo(out, o.MatchID, GameOverEvent(res.Match))
		}
		return nil

	case Resign:
		res, err := d.svc.ResignMatch(ctx, o.MatchID, caller.ID)
		if err != nil || !res.Accepted {
			return err
		}
		d.conns.BroadcastTo(out, o.MatchID, GameOverEvent(res.Match))
		return nil

	case OfferDraw:
		ok, err := d.svc.DrawEligible(ctx, o.MatchID, caller.ID)
		if err != nil || !ok {
			return err
		}
		d.conns.BroadcastTo(out, o.MatchID, DrawOfferedEvent(o.MatchID, caller.ID))
		return nil

	case RespondDraw:
		if !o.Accept {
			return nil
		}
		ok, err := d.svc.DrawEligible(ctx, o.MatchID, caller.ID)
		if err != nil || !ok {
			return err
		}
		res, err := d.svc.AgreeDraw(ctx, o.MatchID)
		if err != nil || !res.Accepted {
			return err
		}
		d.conns.BroadcastTo(out, o.MatchID, GameOverEvent(res.Match))
		return nil

	case SendChat:
		msg, err := d.svc.PostChat(ctx, o.MatchID, caller, o.Content)
		if errors.Is(err, chat.ErrEmpty) || errors.Is(err, coordinator.ErrMatchNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		d.conns.BroadcastTo(out, o.MatchID, ChatReceivedEvent(msg))
		return nil
	}
	obslog.L().Error("gateway_unhandled_operation", zap.String("type", fmt.Sprintf("%T", op)))
	return fmt.Errorf("%w: %T", ErrBadOperation, op)
}
