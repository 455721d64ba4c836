package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-arena/internal/match"
)

var t0 = time.Date(2025, 11, 21, 9, 0, 0, 0, time.UTC)

func newWaiting(id, white string, at time.Time) *match.Match {
	return &match.Match{
		ID:               id,
		WhitePlayerID:    white,
		Position:         match.StartPosition,
		Status:           match.StatusWaiting,
		WhiteRemainingMs: 600_000,
		BlackRemainingMs: 600_000,
		CreatedAt:        at,
	}
}

func join(black string) func(*match.Match) error {
	return func(m *match.Match) error {
		m.BlackPlayerID = black
		m.Status = match.StatusPlaying
		return nil
	}
}

func finish(winner string) func(*match.Match) error {
	return func(m *match.Match) error {
		m.Finish(winner, match.EndResignation, t0.Add(time.Hour))
		return nil
	}
}

func newRedisRegistry(t *testing.T) Registry {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, WithPrefix("test"))
}

func TestMemoryRegistry(t *testing.T) {
	runContract(t, func(t *testing.T) Registry { return NewMemory() })
}

func TestRedisRegistry(t *testing.T) {
	runContract(t, newRedisRegistry)
}

func runContract(t *testing.T, newReg func(t *testing.T) Registry) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		r := newReg(t)
		m := newWaiting("m1", "u1", t0)
		if err := r.Create(ctx, m); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := r.Get(ctx, "m1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.WhitePlayerID != "u1" || got.Status != match.StatusWaiting || got.Version != 1 {
			t.Fatalf("unexpected record: %+v", got)
		}
		if _, err := r.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := r.Create(ctx, newWaiting("m1", "u9", t0)); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("one active match per player", func(t *testing.T) {
		r := newReg(t)
		if err := r.Create(ctx, newWaiting("m1", "u1", t0)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := r.Create(ctx, newWaiting("m2", "u1", t0)); !errors.Is(err, ErrPlayerBusy) {
			t.Fatalf("expected ErrPlayerBusy, got %v", err)
		}
		if err := r.Create(ctx, newWaiting("m3", "u3", t0)); err != nil {
			t.Fatalf("Create m3: %v", err)
		}
		// u3 owns m3 and cannot also sit in m1
		if _, err := r.Update(ctx, "m1", join("u3")); !errors.Is(err, ErrPlayerBusy) {
			t.Fatalf("expected ErrPlayerBusy on join, got %v", err)
		}
		got, _ := r.Get(ctx, "m1")
		if got.BlackPlayerID != "" || got.Status != match.StatusWaiting {
			t.Fatalf("rejected join mutated record: %+v", got)
		}
	})

	t.Run("update lifecycle releases slots", func(t *testing.T) {
		r := newReg(t)
		if err := r.Create(ctx, newWaiting("m1", "u1", t0)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		m, err := r.Update(ctx, "m1", join("u2"))
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if m.Version != 2 || m.Status != match.StatusPlaying {
			t.Fatalf("unexpected after join: %+v", m)
		}
		active, err := r.FindActiveByPlayer(ctx, "u2")
		if err != nil || active == nil || active.ID != "m1" {
			t.Fatalf("FindActiveByPlayer(u2) = %v, %v", active, err)
		}
		if w, _ := r.FindWaitingByOwner(ctx, "u1"); w != nil {
			t.Fatalf("playing match reported as waiting")
		}

		if _, err := r.Update(ctx, "m1", finish("u1")); err != nil {
			t.Fatalf("finish: %v", err)
		}
		for _, p := range []string{"u1", "u2"} {
			if a, err := r.FindActiveByPlayer(ctx, p); err != nil || a != nil {
				t.Fatalf("slot of %s not released: %v, %v", p, a, err)
			}
		}
		if _, err := r.Update(ctx, "m1", func(m *match.Match) error { return nil }); !errors.Is(err, ErrFinished) {
			t.Fatalf("expected ErrFinished, got %v", err)
		}
		if err := r.Create(ctx, newWaiting("m2", "u2", t0)); err != nil {
			t.Fatalf("player should be free after finish: %v", err)
		}
	})

	t.Run("fn error aborts without write", func(t *testing.T) {
		r := newReg(t)
		if err := r.Create(ctx, newWaiting("m1", "u1", t0)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		boom := errors.New("boom")
		_, err := r.Update(ctx, "m1", func(m *match.Match) error {
			m.Position = "changed"
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected fn error, got %v", err)
		}
		got, _ := r.Get(ctx, "m1")
		if got.Position != match.StartPosition || got.Version != 1 {
			t.Fatalf("aborted update was written: %+v", got)
		}
	})

	t.Run("status never moves backwards", func(t *testing.T) {
		r := newReg(t)
		if err := r.Create(ctx, newWaiting("m1", "u1", t0)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := r.Update(ctx, "m1", join("u2")); err != nil {
			t.Fatalf("join: %v", err)
		}
		_, err := r.Update(ctx, "m1", func(m *match.Match) error {
			m.Status = match.StatusWaiting
			return nil
		})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("concurrent write conflicts", func(t *testing.T) {
		r := newReg(t)
		if err := r.Create(ctx, newWaiting("m1", "u1", t0)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := r.Update(ctx, "m1", join("u2")); err != nil {
			t.Fatalf("join: %v", err)
		}
		_, err := r.Update(ctx, "m1", func(m *match.Match) error {
			// a second writer commits first
			if _, err := r.Update(ctx, "m1", func(inner *match.Match) error {
				inner.MoveHistory = "e2e4 "
				return nil
			}); err != nil {
				t.Errorf("inner update: %v", err)
			}
			m.MoveHistory = "d2d4 "
			return nil
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		got, _ := r.Get(ctx, "m1")
		if got.MoveHistory != "e2e4 " {
			t.Fatalf("losing write was applied: %q", got.MoveHistory)
		}
	})

	t.Run("delete only while waiting", func(t *testing.T) {
		r := newReg(t)
		if err := r.Create(ctx, newWaiting("m1", "u1", t0)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if w, err := r.FindWaitingByOwner(ctx, "u1"); err != nil || w == nil {
			t.Fatalf("FindWaitingByOwner = %v, %v", w, err)
		}
		if err := r.Delete(ctx, "m1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := r.Get(ctx, "m1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if a, _ := r.FindActiveByPlayer(ctx, "u1"); a != nil {
			t.Fatalf("slot survived delete")
		}

		if err := r.Create(ctx, newWaiting("m2", "u1", t0)); err != nil {
			t.Fatalf("Create m2: %v", err)
		}
		if _, err := r.Update(ctx, "m2", join("u2")); err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := r.Delete(ctx, "m2"); !errors.Is(err, ErrNotWaiting) {
			t.Fatalf("expected ErrNotWaiting, got %v", err)
		}
		if err := r.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list by status newest first", func(t *testing.T) {
		r := newReg(t)
		for i := 0; i < 5; i++ {
			m := newWaiting(fmt.Sprintf("m%d", i), fmt.Sprintf("u%d", i), t0.Add(time.Duration(i)*time.Minute))
			if err := r.Create(ctx, m); err != nil {
				t.Fatalf("Create: %v", err)
			}
		}
		if _, err := r.Update(ctx, "m0", join("x0")); err != nil {
			t.Fatalf("join: %v", err)
		}

		page, err := r.ListByStatus(ctx, match.StatusWaiting, 1, 2)
		if err != nil {
			t.Fatalf("ListByStatus: %v", err)
		}
		if page.Total != 4 || len(page.Items) != 2 || page.Items[0].ID != "m4" || page.Items[1].ID != "m3" {
			t.Fatalf("unexpected first page: total=%d items=%v", page.Total, ids(page.Items))
		}
		page2, err := r.ListByStatus(ctx, match.StatusWaiting, 2, 2)
		if err != nil {
			t.Fatalf("ListByStatus p2: %v", err)
		}
		if len(page2.Items) != 2 || page2.Items[0].ID != "m2" || page2.Items[1].ID != "m1" {
			t.Fatalf("unexpected second page: %v", ids(page2.Items))
		}
		playing, _ := r.ListByStatus(ctx, match.StatusPlaying, 0, 0)
		if playing.Total != 1 || playing.Items[0].ID != "m0" || playing.PageSize != DefaultPageSize {
			t.Fatalf("unexpected playing page: %+v", playing)
		}
		if _, err := r.ListByStatus(ctx, match.Status("BOGUS"), 1, 10); !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
	})

	t.Run("list by player across statuses", func(t *testing.T) {
		r := newReg(t)
		// u1 plays m0 to the end, then sits black in m1
		if err := r.Create(ctx, newWaiting("m0", "u1", t0)); err != nil {
			t.Fatalf("Create m0: %v", err)
		}
		if _, err := r.Update(ctx, "m0", join("u2")); err != nil {
			t.Fatalf("join m0: %v", err)
		}
		if _, err := r.Update(ctx, "m0", finish("u2")); err != nil {
			t.Fatalf("finish m0: %v", err)
		}
		if err := r.Create(ctx, newWaiting("m1", "u3", t0.Add(time.Minute))); err != nil {
			t.Fatalf("Create m1: %v", err)
		}
		if _, err := r.Update(ctx, "m1", join("u1")); err != nil {
			t.Fatalf("join m1: %v", err)
		}
		if err := r.Create(ctx, newWaiting("m2", "u4", t0.Add(2*time.Minute))); err != nil {
			t.Fatalf("Create m2: %v", err)
		}
		if err := r.Create(ctx, newWaiting("other", "u5", t0.Add(3*time.Minute))); err != nil {
			t.Fatalf("Create other: %v", err)
		}

		all, err := r.ListByPlayer(ctx, "u1", match.StatusAll, 1, 10)
		if err != nil {
			t.Fatalf("ListByPlayer: %v", err)
		}
		if all.Total != 2 || len(all.Items) != 2 || all.Items[0].ID != "m1" || all.Items[1].ID != "m0" {
			t.Fatalf("unexpected history: total=%d items=%v", all.Total, ids(all.Items))
		}
		finished, err := r.ListByPlayer(ctx, "u1", match.StatusFinished, 1, 10)
		if err != nil {
			t.Fatalf("ListByPlayer finished: %v", err)
		}
		if finished.Total != 1 || finished.Items[0].ID != "m0" || finished.Items[0].Status != match.StatusFinished {
			t.Fatalf("unexpected finished history: %v", ids(finished.Items))
		}
		second, err := r.ListByPlayer(ctx, "u1", "", 2, 1)
		if err != nil {
			t.Fatalf("ListByPlayer page 2: %v", err)
		}
		if second.Total != 2 || len(second.Items) != 1 || second.Items[0].ID != "m0" {
			t.Fatalf("unexpected second page: %v", ids(second.Items))
		}
		if none, err := r.ListByPlayer(ctx, "nobody", match.StatusAll, 1, 10); err != nil || none.Total != 0 || len(none.Items) != 0 {
			t.Fatalf("unknown player history = %+v, %v", none, err)
		}

		// a cancelled waiting match leaves the history
		if err := r.Delete(ctx, "m2"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if h, _ := r.ListByPlayer(ctx, "u4", match.StatusAll, 1, 10); h.Total != 0 {
			t.Fatalf("deleted match still listed: %v", ids(h.Items))
		}
		if _, err := r.ListByPlayer(ctx, "u1", match.Status("BOGUS"), 1, 10); !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
	})
}

func ids(items []*match.Match) []string {
	out := make([]string, 0, len(items))
	for _, m := range items {
		out = append(out, m.ID)
	}
	return out
}

func TestRedisFinishedTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	r := NewRedis(rdb, WithFinishedTTL(time.Hour))
	ctx := context.Background()

	if err := r.Create(ctx, newWaiting("m1", "u1", t0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Update(ctx, "m1", join("u2")); err != nil {
		t.Fatalf("join: %v", err)
	}
	if ttl := mr.TTL("arena:match:m1"); ttl != 0 {
		t.Fatalf("active match must not expire, ttl=%v", ttl)
	}
	if _, err := r.Update(ctx, "m1", finish("")); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if ttl := mr.TTL("arena:match:m1"); ttl != time.Hour {
		t.Fatalf("finished match ttl=%v", ttl)
	}
	mr.FastForward(2 * time.Hour)
	page, err := r.ListByStatus(ctx, match.StatusFinished, 1, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expired match still listed: %v", ids(page.Items))
	}

	hist, err := r.ListByPlayer(ctx, "u2", match.StatusAll, 1, 10)
	if err != nil {
		t.Fatalf("ListByPlayer: %v", err)
	}
	if hist.Total != 0 || len(hist.Items) != 0 {
		t.Fatalf("expired match still in history: %v", ids(hist.Items))
	}
	if n, err := rdb.ZCard(ctx, "arena:player:u2").Result(); err != nil || n != 0 {
		t.Fatalf("stale history entries = %d, %v", n, err)
	}
}
