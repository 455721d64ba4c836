package termination

import (
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/rules"
)

// FiftyMoveHalfMoves is the half-move clock value at which a match is drawn.
const FiftyMoveHalfMoves = 100

// Outcome describes whether a position ends the match.
// Winner is empty for draws and for non-terminal positions.
type Outcome struct {
	Terminal bool
	Winner   match.Color
	Reason   match.EndReason
}

// Draw reports a terminal outcome without a winner.
func (o Outcome) Draw() bool { return o.Terminal && o.Winner == "" }

// Detector is the subset of rules.Engine needed to classify a position.
type Detector interface {
	WhoseTurn(p rules.Position) match.Color
	Serialize(p rules.Position) string
	IsCheckmated(p rules.Position, c match.Color) bool
	IsStalemated(p rules.Position, c match.Color) bool
	IsInsufficientMaterial(p rules.Position) bool
}

// Detect evaluates p for the side to move. The first matching rule wins:
// checkmate, stalemate, insufficient material, then the fifty-move rule.
func Detect(engine Detector, p rules.Position) Outcome {
	toMove := engine.WhoseTurn(p)
	if toMove == "" {
		return Outcome{}
	}
	if engine.IsCheckmated(p, toMove) {
		return Outcome{Terminal: true, Winner: toMove.Opponent(), Reason: match.EndCheckmate}
	}
	if engine.IsStalemated(p, toMove) {
		return Outcome{Terminal: true, Reason: match.EndStalemate}
	}
	if engine.IsInsufficientMaterial(p) {
		return Outcome{Terminal: true, Reason: match.EndInsufficientMaterial}
	}
	if rules.HalfMoveClock(engine.Serialize(p)) >= FiftyMoveHalfMoves {
		return Outcome{Terminal: true, Reason: match.EndFiftyMove}
	}
	return Outcome{}
}
