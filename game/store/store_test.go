package store

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testStoreContract exercises the behavior every Store backend must share.
func testStoreContract(t *testing.T, st Store) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		_, err := st.Get(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("set get delete", func(t *testing.T) {
		if err := st.Set(ctx, "room:test:admin", "conn-1"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		value, err := st.Get(ctx, "room:test:admin")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if value != "conn-1" {
			t.Errorf("Expected 'conn-1', got '%s'", value)
		}

		if err := st.Set(ctx, "room:test:admin", "conn-2"); err != nil {
			t.Fatalf("Set (overwrite) failed: %v", err)
		}
		value, _ = st.Get(ctx, "room:test:admin")
		if value != "conn-2" {
			t.Errorf("Expected overwrite to 'conn-2', got '%s'", value)
		}

		if err := st.Delete(ctx, "room:test:admin"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := st.Get(ctx, "room:test:admin"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}

		// Deleting again is fine
		if err := st.Delete(ctx, "room:test:admin"); err != nil {
			t.Errorf("Deleting a missing key should not fail: %v", err)
		}
	})

	t.Run("hash operations", func(t *testing.T) {
		key := "room:test:players"

		all, err := st.HGetAll(ctx, key)
		if err != nil {
			t.Fatalf("HGetAll on missing hash failed: %v", err)
		}
		if len(all) != 0 {
			t.Errorf("Expected empty hash, got %v", all)
		}

		if err := st.HSet(ctx, key, "a", `{"nickname":"alice"}`); err != nil {
			t.Fatalf("HSet failed: %v", err)
		}
		if err := st.HSet(ctx, key, "b", `{"nickname":"bob"}`); err != nil {
			t.Fatalf("HSet failed: %v", err)
		}

		all, err = st.HGetAll(ctx, key)
		if err != nil {
			t.Fatalf("HGetAll failed: %v", err)
		}
		if len(all) != 2 || all["a"] != `{"nickname":"alice"}` || all["b"] != `{"nickname":"bob"}` {
			t.Errorf("Unexpected hash contents: %v", all)
		}

		keys, err := st.HKeys(ctx, key)
		if err != nil {
			t.Fatalf("HKeys failed: %v", err)
		}
		sort.Strings(keys)
		if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
			t.Errorf("Expected keys [a b], got %v", keys)
		}

		removed, err := st.HDel(ctx, key, "a")
		if err != nil {
			t.Fatalf("HDel failed: %v", err)
		}
		if !removed {
			t.Error("Expected HDel to report removal")
		}

		removed, err = st.HDel(ctx, key, "a")
		if err != nil {
			t.Fatalf("Second HDel failed: %v", err)
		}
		if removed {
			t.Error("Second HDel of the same field should report nothing removed")
		}

		removed, _ = st.HDel(ctx, "room:none:players", "a")
		if removed {
			t.Error("HDel on a missing hash should report nothing removed")
		}

		st.HDel(ctx, key, "b")
		keys, err = st.HKeys(ctx, key)
		if err != nil {
			t.Fatalf("HKeys failed: %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("Expected empty hash after deleting all fields, got %v", keys)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := st.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	testStoreContract(t, st)
}

func TestMemoryStore_HGetAllReturnsCopy(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	st.HSet(ctx, "h", "f", "v")

	all, _ := st.HGetAll(ctx, "h")
	all["f"] = "mutated"
	all["g"] = "added"

	again, _ := st.HGetAll(ctx, "h")
	if again["f"] != "v" || len(again) != 1 {
		t.Errorf("Mutating the returned map changed the store: %v", again)
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	st.Close()

	if _, err := st.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get: expected ErrClosed, got %v", err)
	}
	if err := st.Set(ctx, "k", "v"); !errors.Is(err, ErrClosed) {
		t.Errorf("Set: expected ErrClosed, got %v", err)
	}
	if err := st.HSet(ctx, "h", "f", "v"); !errors.Is(err, ErrClosed) {
		t.Errorf("HSet: expected ErrClosed, got %v", err)
	}
	if _, err := st.HGetAll(ctx, "h"); !errors.Is(err, ErrClosed) {
		t.Errorf("HGetAll: expected ErrClosed, got %v", err)
	}
	if err := st.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping: expected ErrClosed, got %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	st, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("Failed to create redis store: %v", err)
	}
	defer st.Close()

	testStoreContract(t, st)
}

func TestRedisStore_WritesVisibleToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	st := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer st.Close()

	ctx := context.Background()
	st.Set(ctx, "room:global:state", "drawing")
	st.HSet(ctx, "room:global:players", "conn-1", `{"nickname":"alice"}`)

	if got, _ := mr.Get("room:global:state"); got != "drawing" {
		t.Errorf("Expected redis to hold 'drawing', got '%s'", got)
	}
	if got := mr.HGet("room:global:players", "conn-1"); got != `{"nickname":"alice"}` {
		t.Errorf("Unexpected hash field in redis: %s", got)
	}
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr})
	if err == nil {
		t.Fatal("Expected error connecting to a stopped redis")
	}
}
