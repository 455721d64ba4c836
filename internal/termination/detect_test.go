package termination

import (
	"testing"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/rules"
)

func load(t *testing.T, e *rules.Standard, fen string) rules.Position {
	t.Helper()
	p, err := e.LoadPosition(fen)
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	return p
}

func TestDetect(t *testing.T) {
	e := rules.NewStandard()
	cases := []struct {
		name string
		fen  string
		want Outcome
	}{
		{"start", match.StartPosition, Outcome{}},
		{"fools mate", "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
			Outcome{Terminal: true, Winner: match.Black, Reason: match.EndCheckmate}},
		{"stalemate", "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1",
			Outcome{Terminal: true, Reason: match.EndStalemate}},
		{"bare kings", "8/8/8/4k3/8/8/8/4K3 w - - 0 1",
			Outcome{Terminal: true, Reason: match.EndInsufficientMaterial}},
		{"fifty moves", "8/8/8/4k3/8/8/8/R3K3 w - - 100 90",
			Outcome{Terminal: true, Reason: match.EndFiftyMove}},
		{"ninety-nine half moves", "8/8/8/4k3/8/8/8/R3K3 w - - 99 90", Outcome{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Detect(e, load(t, e, tc.fen))
			if got != tc.want {
				t.Fatalf("Detect = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDetect_InsufficientBeatsFiftyMove(t *testing.T) {
	e := rules.NewStandard()
	got := Detect(e, load(t, e, "8/8/8/4k3/8/8/8/4K3 w - - 120 90"))
	if got.Reason != match.EndInsufficientMaterial || !got.Draw() {
		t.Fatalf("unexpected outcome: %+v", got)
	}
}
