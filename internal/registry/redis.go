package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-arena/internal/match"
)

// Connect opens a client for a redis:// or rediss:// URL and pings it.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Redis stores each match as JSON under <prefix>:match:<id>, with one sorted set per status
// (scored by creation time) and one active-slot key per player holding the bound match id.
// <prefix>:player:<id> is a sorted set of every match the player was seated in; entries whose
// match expired are dropped when the set is next read.
type Redis struct {
	rdb         *redis.Client
	prefix      string
	finishedTTL time.Duration
}

type RedisOption func(*Redis)

// WithPrefix overrides the key namespace (default "arena").
func WithPrefix(p string) RedisOption {
	return func(r *Redis) {
		if p = strings.TrimSpace(p); p != "" {
			r.prefix = p
		}
	}
}

// WithFinishedTTL expires finished matches after d. Zero keeps them forever.
func WithFinishedTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.finishedTTL = d }
}

func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, prefix: "arena"}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ Registry = (*Redis)(nil)

func (r *Redis) matchKey(id string) string       { return r.prefix + ":match:" + strings.TrimSpace(id) }
func (r *Redis) slotKey(p string) string         { return r.prefix + ":active:" + strings.TrimSpace(p) }
func (r *Redis) statusKey(s match.Status) string { return r.prefix + ":status:" + string(s) }
func (r *Redis) playerKey(p string) string       { return r.prefix + ":player:" + strings.TrimSpace(p) }

func (r *Redis) Create(ctx context.Context, m *match.Match) error {
	if err := checkCreate(m); err != nil {
		return err
	}
	key := r.matchKey(m.ID)
	claims := seatClaims(nil, m)
	watched := []string{key}
	for _, p := range claims {
		watched = append(watched, r.slotKey(p))
	}

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		for _, p := range claims {
			busy, err := r.slotBusy(ctx, tx, p, m.ID)
			if err != nil {
				return err
			}
			if busy {
				return ErrPlayerBusy
			}
		}
		rec := m.Clone()
		rec.Version = 1
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, raw, r.ttlFor(rec))
		pipe.ZAdd(ctx, r.statusKey(rec.Status), redis.Z{Score: score(rec), Member: rec.ID})
		for _, p := range claims {
			pipe.Set(ctx, r.slotKey(p), rec.ID, 0)
		}
		for _, p := range newSeats(nil, rec) {
			pipe.ZAdd(ctx, r.playerKey(p), redis.Z{Score: score(rec), Member: rec.ID})
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		m.Version = rec.Version
		return nil
	}, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (r *Redis) Get(ctx context.Context, id string) (*match.Match, error) {
	return r.load(ctx, r.rdb, id)
}

func (r *Redis) Update(ctx context.Context, id string, fn func(*match.Match) error) (*match.Match, error) {
	key := r.matchKey(id)
	var out *match.Match

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status == match.StatusFinished {
			return ErrFinished
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := checkWrite(cur, next); err != nil {
			return err
		}
		next.Version = cur.Version + 1

		claims := seatClaims(cur, next)
		for _, p := range claims {
			if err := tx.Watch(ctx, r.slotKey(p)).Err(); err != nil {
				return err
			}
			busy, err := r.slotBusy(ctx, tx, p, cur.ID)
			if err != nil {
				return err
			}
			if busy {
				return ErrPlayerBusy
			}
		}
		var release []string
		if next.Status == match.StatusFinished {
			release, err = r.ownedSlots(ctx, tx, next)
			if err != nil {
				return err
			}
		}

		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, raw, r.ttlFor(next))
		if cur.Status != next.Status {
			pipe.ZRem(ctx, r.statusKey(cur.Status), cur.ID)
			pipe.ZAdd(ctx, r.statusKey(next.Status), redis.Z{Score: score(next), Member: next.ID})
		}
		for _, p := range claims {
			pipe.Set(ctx, r.slotKey(p), next.ID, 0)
		}
		for _, p := range newSeats(cur, next) {
			pipe.ZAdd(ctx, r.playerKey(p), redis.Z{Score: score(next), Member: next.ID})
		}
		for _, k := range release {
			pipe.Del(ctx, k)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = next
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Redis) FindWaitingByOwner(ctx context.Context, playerID string) (*match.Match, error) {
	rec, err := r.FindActiveByPlayer(ctx, playerID)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Status != match.StatusWaiting || rec.WhitePlayerID != strings.TrimSpace(playerID) {
		return nil, nil
	}
	return rec, nil
}

func (r *Redis) FindActiveByPlayer(ctx context.Context, playerID string) (*match.Match, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, nil
	}
	id, err := r.rdb.Get(ctx, r.slotKey(playerID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := r.load(ctx, r.rdb, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !rec.Status.Active() {
		return nil, nil
	}
	return rec, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	key := r.matchKey(id)
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != match.StatusWaiting {
			return ErrNotWaiting
		}
		release, err := r.ownedSlots(ctx, tx, cur)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, r.statusKey(cur.Status), cur.ID)
		for _, p := range cur.Players() {
			pipe.ZRem(ctx, r.playerKey(p), cur.ID)
		}
		for _, k := range release {
			pipe.Del(ctx, k)
		}
		_, err = pipe.Exec(ctx)
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (r *Redis) ListByStatus(ctx context.Context, status match.Status, page, pageSize int) (Page, error) {
	if !status.Valid() {
		return Page{}, ErrInvalidStatus
	}
	page, pageSize = NormalizePage(page, pageSize)
	zkey := r.statusKey(status)

	total, err := r.rdb.ZCard(ctx, zkey).Result()
	if err != nil {
		return Page{}, err
	}
	start := int64((page - 1) * pageSize)
	ids, err := r.rdb.ZRevRange(ctx, zkey, start, start+int64(pageSize)-1).Result()
	if err != nil {
		return Page{}, err
	}
	out := Page{Total: total, Page: page, PageSize: pageSize, Items: make([]*match.Match, 0, len(ids))}
	for _, id := range ids {
		rec, err := r.load(ctx, r.rdb, id)
		if errors.Is(err, ErrNotFound) {
			// expired finished match; drop the stale index entry
			_ = r.rdb.ZRem(ctx, zkey, id).Err()
			continue
		}
		if err != nil {
			return Page{}, err
		}
		out.Items = append(out.Items, rec)
	}
	return out, nil
}

// ListByPlayer reads the whole player index because the status filter is applied per record.
func (r *Redis) ListByPlayer(ctx context.Context, playerID string, status match.Status, page, pageSize int) (Page, error) {
	if err := checkFilter(status); err != nil {
		return Page{}, err
	}
	page, pageSize = NormalizePage(page, pageSize)
	empty := Page{Page: page, PageSize: pageSize, Items: []*match.Match{}}
	if strings.TrimSpace(playerID) == "" {
		return empty, nil
	}
	zkey := r.playerKey(playerID)

	ids, err := r.rdb.ZRevRange(ctx, zkey, 0, -1).Result()
	if err != nil {
		return Page{}, err
	}
	if len(ids) == 0 {
		return empty, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.matchKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return Page{}, err
	}

	items := make([]*match.Match, 0, len(ids))
	var stale []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var m match.Match
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return Page{}, fmt.Errorf("decode match %s: %w", ids[i], err)
		}
		if filterMatches(status, m.Status) {
			items = append(items, &m)
		}
	}
	if len(stale) > 0 {
		// expired finished matches; drop the stale index entries
		_ = r.rdb.ZRem(ctx, zkey, stale...).Err()
	}
	return pageOf(items, page, pageSize), nil
}

func (r *Redis) load(ctx context.Context, c getter, id string) (*match.Match, error) {
	raw, err := c.Get(ctx, r.matchKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var m match.Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode match %s: %w", id, err)
	}
	return &m, nil
}

// slotBusy reports whether playerID is bound to an active match other than matchID.
// Slots pointing at missing or finished matches are treated as free.
func (r *Redis) slotBusy(ctx context.Context, c getter, playerID, matchID string) (bool, error) {
	bound, err := c.Get(ctx, r.slotKey(playerID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if bound == matchID {
		return false, nil
	}
	other, err := r.load(ctx, c, bound)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return other.Status.Active(), nil
}

// ownedSlots returns the slot keys of m's players that still point at m.
func (r *Redis) ownedSlots(ctx context.Context, c getter, m *match.Match) ([]string, error) {
	var keys []string
	for _, p := range m.Players() {
		k := r.slotKey(p)
		bound, err := c.Get(ctx, k).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		if bound == m.ID {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (r *Redis) ttlFor(m *match.Match) time.Duration {
	if m.Status == match.StatusFinished {
		return r.finishedTTL
	}
	return 0
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func score(m *match.Match) float64 { return float64(m.CreatedAt.UnixMilli()) }
