package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/chat"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
)

// Schema creates the archive tables when missing.
const Schema = `
CREATE TABLE IF NOT EXISTS arena_matches (
    match_id       TEXT PRIMARY KEY,
    white_id       TEXT NOT NULL,
    white_name     TEXT NOT NULL DEFAULT '',
    black_id       TEXT NOT NULL DEFAULT '',
    black_name     TEXT NOT NULL DEFAULT '',
    winner_id      TEXT,
    result         TEXT NOT NULL,
    end_reason     TEXT NOT NULL,
    final_fen      TEXT NOT NULL,
    moves_uci      JSONB NOT NULL,
    moves_san      JSONB NOT NULL,
    pgn            TEXT NOT NULL,
    time_limit_ms  BIGINT NOT NULL DEFAULT 0,
    increment_ms   BIGINT NOT NULL DEFAULT 0,
    started_at     TIMESTAMPTZ NOT NULL,
    ended_at       TIMESTAMPTZ NOT NULL,
    duration_ms    BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS arena_chat_messages (
    id         TEXT PRIMARY KEY,
    match_id   TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    username   TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS arena_chat_messages_match_idx ON arena_chat_messages (match_id, created_at);
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository archives finished matches and their chat into Postgres.
type Repository struct {
	db   *sql.DB
	exec execer
	chat chat.Store
}

// Open connects to databaseURL and pings it.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{db: db, exec: db}, nil
}

// WithChat makes MatchFinished copy the match's chat history as well.
func (r *Repository) WithChat(s chat.Store) *Repository {
	r.chat = s
	return r
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Migrate applies Schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.exec.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

// MatchFinished archives m and, when a chat store is attached, its chat lines.
func (r *Repository) MatchFinished(ctx context.Context, m *match.Match) error {
	if err := r.SaveResult(ctx, m); err != nil {
		return err
	}
	if r.chat == nil {
		return nil
	}
	msgs, err := r.chat.List(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("archive chat: %w", err)
	}
	return r.SaveChat(ctx, msgs)
}

// SaveResult upserts a finished match.
func (r *Repository) SaveResult(ctx context.Context, m *match.Match) error {
	if r == nil || r.exec == nil || m == nil {
		return nil
	}
	rec := NewRecord(m)

	movesUCI, _ := json.Marshal(rec.MovesUCI)
	movesSAN, _ := json.Marshal(rec.MovesSAN)

	q := `INSERT INTO arena_matches (
        match_id, white_id, white_name, black_id, black_name,
        winner_id, result, end_reason, final_fen,
        moves_uci, moves_san, pgn, time_limit_ms, increment_ms,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
      ) ON CONFLICT (match_id) DO UPDATE SET
        black_id=EXCLUDED.black_id,
        black_name=EXCLUDED.black_name,
        winner_id=EXCLUDED.winner_id,
        result=EXCLUDED.result,
        end_reason=EXCLUDED.end_reason,
        final_fen=EXCLUDED.final_fen,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.exec.ExecContext(ctx, q,
		m.ID,
		m.WhitePlayerID, m.WhiteName,
		m.BlackPlayerID, m.BlackName,
		m.WinnerID, rec.Result, string(m.EndReason), m.Position,
		string(movesUCI), string(movesSAN), rec.PGN, m.TimeLimitMs, m.IncrementMs,
		rec.StartedAt, rec.EndedAt, rec.EndedAt.Sub(rec.StartedAt).Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", m.ID, err)
	}
	obslog.L().Info("archive_saved", zap.String("match_id", m.ID), zap.String("result", rec.Result))
	return nil
}

// SaveChat inserts chat lines, skipping ones already archived.
func (r *Repository) SaveChat(ctx context.Context, msgs []match.ChatMessage) error {
	const q = `INSERT INTO arena_chat_messages (id, match_id, user_id, username, content, created_at)
      VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (id) DO NOTHING`
	for _, msg := range msgs {
		if _, err := r.exec.ExecContext(ctx, q, msg.ID, msg.MatchID, msg.UserID, msg.Username, msg.Content, msg.CreatedAt); err != nil {
			return fmt.Errorf("save chat %s: %w", msg.ID, err)
		}
	}
	return nil
}
