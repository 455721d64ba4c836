package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/match"
)

var (
	ErrBadPosition = errors.New("invalid position")
	ErrBadToken    = errors.New("malformed move token")
	ErrIllegal     = errors.New("illegal move")
)

// Engine is the rules surface the coordinator consumes. It never decides whose match it is,
// only what the board allows.
type Engine interface {
	LoadPosition(fen string) (Position, error)
	WhoseTurn(p Position) match.Color
	ParseMove(token string, side match.Color) (Move, error)
	IsLegal(p Position, mv Move) bool
	Apply(p Position, mv Move) (Position, error)
	Serialize(p Position) string
	IsCheckmated(p Position, c match.Color) bool
	IsStalemated(p Position, c match.Color) bool
	IsInsufficientMaterial(p Position) bool
}

// Position is an immutable handle on a board state.
type Position struct {
	game *nchess.Game
}

func (p Position) valid() bool { return p.game != nil }

// Move is a coordinate move bound to the side that makes it.
type Move struct {
	From  nchess.Square
	To    nchess.Square
	Promo nchess.PieceType
	Side  match.Color
	token string
}

// Token returns the normalized coordinate form, e.g. "e7e8q".
func (m Move) Token() string { return m.token }

// Standard implements Engine with github.com/corentings/chess/v2.
type Standard struct{}

func NewStandard() *Standard { return &Standard{} }

var _ Engine = (*Standard)(nil)

func (s *Standard) LoadPosition(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return Position{game: nchess.NewGame()}, nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return Position{game: nchess.NewGame(opt)}, nil
}

func (s *Standard) WhoseTurn(p Position) match.Color {
	if !p.valid() {
		return ""
	}
	return colorFrom(p.game.Position().Turn())
}

// ParseMove accepts <src><dst>[promotion], e.g. e2e4 or e7e8q, case-insensitively.
func (s *Standard) ParseMove(token string, side match.Color) (Move, error) {
	tok := strings.ToLower(strings.TrimSpace(token))
	if len(tok) != 4 && len(tok) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrBadToken, token)
	}
	from, ok := parseSquare(tok[0:2])
	if !ok {
		return Move{}, fmt.Errorf("%w: %q", ErrBadToken, token)
	}
	to, ok := parseSquare(tok[2:4])
	if !ok {
		return Move{}, fmt.Errorf("%w: %q", ErrBadToken, token)
	}
	promo := nchess.NoPieceType
	if len(tok) == 5 {
		switch tok[4] {
		case 'q':
			promo = nchess.Queen
		case 'r':
			promo = nchess.Rook
		case 'b':
			promo = nchess.Bishop
		case 'n':
			promo = nchess.Knight
		default:
			return Move{}, fmt.Errorf("%w: promotion %q", ErrBadToken, tok[4:])
		}
	}
	return Move{From: from, To: to, Promo: promo, Side: side, token: tok}, nil
}

func (s *Standard) IsLegal(p Position, mv Move) bool {
	if !p.valid() || mv.token == "" {
		return false
	}
	pos := p.game.Position()
	if mv.Side != "" && colorFrom(pos.Turn()) != mv.Side {
		return false
	}
	for _, vm := range pos.ValidMoves() {
		if vm.S1() == mv.From && vm.S2() == mv.To && vm.Promo() == mv.Promo {
			return true
		}
	}
	return false
}

// Apply returns a new handle; p is left untouched.
func (s *Standard) Apply(p Position, mv Move) (Position, error) {
	if !s.IsLegal(p, mv) {
		return Position{}, fmt.Errorf("%w: %s", ErrIllegal, mv.token)
	}
	next, err := s.LoadPosition(s.Serialize(p))
	if err != nil {
		return Position{}, err
	}
	if err := next.game.PushNotationMove(mv.token, nchess.UCINotation{}, nil); err != nil {
		return Position{}, fmt.Errorf("%w: %s: %v", ErrIllegal, mv.token, err)
	}
	return next, nil
}

func (s *Standard) Serialize(p Position) string {
	if !p.valid() {
		return ""
	}
	return p.game.FEN()
}

func (s *Standard) IsCheckmated(p Position, c match.Color) bool {
	if !p.valid() {
		return false
	}
	pos := p.game.Position()
	return colorFrom(pos.Turn()) == c && pos.Status() == nchess.Checkmate
}

func (s *Standard) IsStalemated(p Position, c match.Color) bool {
	if !p.valid() {
		return false
	}
	pos := p.game.Position()
	return colorFrom(pos.Turn()) == c && pos.Status() == nchess.Stalemate
}

// IsInsufficientMaterial reports K v K, a lone minor piece, or bishops that all share one
// square color.
func (s *Standard) IsInsufficientMaterial(p Position) bool {
	if !p.valid() {
		return false
	}
	minors := 0
	bishopShades := map[int]bool{}
	knights := 0
	for sq, pc := range p.game.Position().Board().SquareMap() {
		switch pc.Type() {
		case nchess.King, nchess.NoPieceType:
			continue
		case nchess.Pawn, nchess.Rook, nchess.Queen:
			return false
		case nchess.Knight:
			knights++
			minors++
		case nchess.Bishop:
			bishopShades[(int(sq.File())+int(sq.Rank()))%2] = true
			minors++
		}
	}
	if minors <= 1 {
		return true
	}
	return knights == 0 && len(bishopShades) == 1
}

// HalfMoveClock reads the fifth FEN field; malformed input yields 0.
func HalfMoveClock(fen string) int {
	parts := strings.Fields(fen)
	if len(parts) < 5 {
		return 0
	}
	n, err := strconv.Atoi(parts[4])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SAN replays coordinate tokens from the initial position and returns algebraic notation.
// Tokens that are not moves (such as the resignation marker) are skipped.
func SAN(tokens []string) ([]string, error) {
	game := nchess.NewGame()
	out := make([]string, 0, len(tokens))
	notation := nchess.AlgebraicNotation{}
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" || strings.HasPrefix(tok, "(") {
			continue
		}
		before := game.Position()
		if err := game.PushNotationMove(tok, nchess.UCINotation{}, nil); err != nil {
			return out, fmt.Errorf("replay %q: %w", tok, err)
		}
		moves := game.Moves()
		out = append(out, notation.Encode(before, moves[len(moves)-1]))
	}
	return out, nil
}

// Tokens splits a stored move history into its entries.
func Tokens(history string) []string { return strings.Fields(history) }

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

func colorFrom(c nchess.Color) match.Color {
	switch c {
	case nchess.White:
		return match.White
	case nchess.Black:
		return match.Black
	}
	return ""
}
