package archive

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rules"
)

// Record is the archived form of a finished match.
type Record struct {
	Result    string // 1-0 | 0-1 | 1/2-1/2 | *
	MovesUCI  []string
	MovesSAN  []string
	PGN       string
	StartedAt time.Time
	EndedAt   time.Time
}

func NewRecord(m *match.Match) Record {
	uci := make([]string, 0)
	for _, tok := range rules.Tokens(m.MoveHistory) {
		if !strings.HasPrefix(tok, "(") {
			uci = append(uci, tok)
		}
	}
	san, err := rules.SAN(uci)
	if err != nil {
		// 재생 실패 시 가능한 부분까지만 기록
		obslog.L().Warn("archive_san_replay", zap.String("match_id", m.ID), zap.Error(err))
	}

	started := m.CreatedAt
	if m.StartedAt != nil {
		started = *m.StartedAt
	}
	ended := started
	if m.FinishedAt != nil {
		ended = *m.FinishedAt
	}
	rec := Record{
		Result:    pgnResult(m),
		MovesUCI:  uci,
		MovesSAN:  san,
		StartedAt: started,
		EndedAt:   ended,
	}
	rec.PGN = buildPGN(m, rec)
	return rec
}

func pgnResult(m *match.Match) string {
	if m.Status != match.StatusFinished {
		return "*"
	}
	if m.WinnerID == nil {
		return "1/2-1/2"
	}
	switch *m.WinnerID {
	case m.WhitePlayerID:
		return "1-0"
	case m.BlackPlayerID:
		return "0-1"
	}
	return "*"
}

func buildPGN(m *match.Match, rec Record) string {
	var b strings.Builder
	date := rec.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(m.ID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(displayName(m.WhiteName, m.WhitePlayerID))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(displayName(m.BlackName, m.BlackPlayerID))))
	b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", timeControl(m)))
	if m.EndReason != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(string(m.EndReason))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", rec.Result))

	for i := 0; i < len(rec.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, rec.MovesSAN[i]))
		if i+1 < len(rec.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(rec.MovesSAN[i+1])
		}
		b.WriteString(" ")
	}
	b.WriteString(rec.Result)
	return b.String()
}

// timeControl renders the clock in PGN form, "<base seconds>+<increment seconds>".
func timeControl(m *match.Match) string {
	if m.TimeLimitMs <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d+%d", m.TimeLimitMs/1000, m.IncrementMs/1000)
}

func displayName(name, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return id
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
