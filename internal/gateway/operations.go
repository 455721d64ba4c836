package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/cheese-arena/pkg/matchdto"
)

var ErrBadOperation = errors.New("bad operation")

// Operation is the closed set of inbound websocket operations.
type Operation interface {
	Match() string
	operation()
}

type JoinChannel struct{ MatchID string }
type LeaveChannel struct{ MatchID string }
type SendMove struct{ MatchID, Move string }
type Resign struct{ MatchID string }
type OfferDraw struct{ MatchID string }
type RespondDraw struct {
	MatchID string
	Accept  bool
}
type SendChat struct{ MatchID, Content string }

func (o JoinChannel) Match() string  { return o.MatchID }
func (o LeaveChannel) Match() string { return o.MatchID }
func (o SendMove) Match() string     { return o.MatchID }
func (o Resign) Match() string       { return o.MatchID }
func (o OfferDraw) Match() string    { return o.MatchID }
func (o RespondDraw) Match() string  { return o.MatchID }
func (o SendChat) Match() string     { return o.MatchID }

func (JoinChannel) operation()  {}
func (LeaveChannel) operation() {}
func (SendMove) operation()     {}
func (Resign) operation()       {}
func (OfferDraw) operation()    {}
func (RespondDraw) operation()  {}
func (SendChat) operation()     {}

// DecodeOperation parses an inbound frame.
func DecodeOperation(raw []byte) (Operation, error) {
	var in matchdto.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOperation, err)
	}
	id := strings.TrimSpace(in.MatchID)
	if id == "" {
		return nil, fmt.Errorf("%w: match_id required", ErrBadOperation)
	}
	switch in.Op {
	case matchdto.OpJoinChannel:
		return JoinChannel{MatchID: id}, nil
	case matchdto.OpLeaveChannel:
		return LeaveChannel{MatchID: id}, nil
	case matchdto.OpSendMove:
		return SendMove{MatchID: id, Move: in.Move}, nil
	case matchdto.OpResign:
		return Resign{MatchID: id}, nil
	case matchdto.OpOfferDraw:
		return OfferDraw{MatchID: id}, nil
	case matchdto.OpRespondDraw:
		return RespondDraw{MatchID: id, Accept: in.Accept}, nil
	case matchdto.OpSendChat:
		return SendChat{MatchID: id, Content: in.Content}, nil
	}
	return nil, fmt.Errorf("%w: unknown op %q", ErrBadOperation, in.Op)
}
