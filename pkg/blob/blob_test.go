package blob

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		if err := store.Put(ctx, "checkpoints/t1/a.json", []byte(`{"v":1}`)); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		data, err := store.Get(ctx, "checkpoints/t1/a.json")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if string(data) != `{"v":1}` {
			t.Errorf("unexpected data %q", data)
		}
	})

	t.Run("stored copy is isolated", func(t *testing.T) {
		src := []byte("abc")
		store.Put(ctx, "iso", src)
		src[0] = 'X'

		data, _ := store.Get(ctx, "iso")
		if string(data) != "abc" {
			t.Errorf("stored object aliased caller buffer: %q", data)
		}
	})

	t.Run("exists", func(t *testing.T) {
		ok, _ := store.Exists(ctx, "checkpoints/t1/a.json")
		if !ok {
			t.Error("expected object to exist")
		}
		ok, _ = store.Exists(ctx, "nope")
		if ok {
			t.Error("expected object to be absent")
		}
	})

	t.Run("list by prefix", func(t *testing.T) {
		store.Put(ctx, "checkpoints/t1/b.json", []byte(`{}`))
		store.Put(ctx, "checkpoints/t2/c.json", []byte(`{}`))

		keys, err := store.List(ctx, "checkpoints/t1/")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(keys) != 2 || keys[0] != "checkpoints/t1/a.json" || keys[1] != "checkpoints/t1/b.json" {
			t.Errorf("unexpected keys %v", keys)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := store.Delete(ctx, "checkpoints/t1/a.json"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if err := store.Delete(ctx, "checkpoints/t1/a.json"); err != nil {
			t.Errorf("second delete failed: %v", err)
		}
		ok, _ := store.Exists(ctx, "checkpoints/t1/a.json")
		if ok {
			t.Error("object should be gone")
		}
	})
}
