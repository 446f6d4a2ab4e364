package saves

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/robalobadob/virusspread/internal/database"
	"github.com/robalobadob/virusspread/internal/game"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenMigrated(filepath.Join(t.TempDir(), "saves.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func snapshot(t *testing.T, seed int64) game.Snapshot {
	t.Helper()
	g, err := game.New(game.Options{Size: 6, Level: 2, Rand: game.NewRand(seed)})
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	_ = g.PlaceBarrier(0, 0)
	g.SpreadVirus()
	return g.Snapshot()
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	in := snapshot(t, 3)
	if err := st.Put(ctx, "alice", "  slot one ", in); err != nil {
		t.Fatalf("put: %v", err)
	}
	out, err := st.Get(ctx, "alice", "slot one")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(out.Board, in.Board) || out.Level != in.Level || out.Budget != in.Budget {
		t.Fatalf("stored snapshot differs")
	}
	if _, err := st.Get(ctx, "bob", "slot one"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other owner err = %v, want ErrNotFound", err)
	}
}

func TestStore_OverwriteAndList(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	_ = st.Put(ctx, "alice", "a", snapshot(t, 1))
	_ = st.Put(ctx, "alice", "b", snapshot(t, 2))
	second := snapshot(t, 9)
	if err := st.Put(ctx, "alice", "a", second); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ := st.Get(ctx, "alice", "a")
	if !reflect.DeepEqual(got.Board, second.Board) {
		t.Fatalf("overwrite did not replace the slot")
	}
	list, err := st.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list has %d slots, want 2", len(list))
	}
	for _, m := range list {
		if m.Size != 6 || m.Level != 2 {
			t.Fatalf("meta = %+v", m)
		}
	}
}

func TestStore_InvalidName(t *testing.T) {
	st := newStore(t)
	long := string(make([]rune, 41))
	for _, name := range []string{"", "   ", long} {
		if err := st.Put(context.Background(), "alice", name, snapshot(t, 1)); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("name %q: err = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestStore_DeleteAndClaim(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	_ = st.Put(ctx, "anon-1", "keep", snapshot(t, 1))
	_ = st.Put(ctx, "anon-1", "clash", snapshot(t, 2))
	_ = st.Put(ctx, "user-1", "clash", snapshot(t, 3))

	if err := st.Claim(ctx, "anon-1", "user-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := st.Get(ctx, "user-1", "keep"); err != nil {
		t.Fatalf("claimed slot missing: %v", err)
	}
	if err := st.Delete(ctx, "user-1", "keep"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(ctx, "user-1", "keep"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}
