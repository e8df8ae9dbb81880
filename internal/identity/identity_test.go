package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
)

type failingStore struct {
	FileStore
	saveErr error
}

func (f *failingStore) Save(context.Context, string) error { return f.saveErr }

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "userIdStorage.json")
	store := NewFileStore(path)

	id, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on missing file: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}

	if err := store.Save(ctx, "u-123"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	id, err = NewFileStore(path).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if id != "u-123" {
		t.Fatalf("expected u-123, got %q", id)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error: %v", err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestContext_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "id.json"))

	c, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := c.Require(); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if err := c.SetUserID(ctx, "u1"); err != nil {
		t.Fatalf("SetUserID() error: %v", err)
	}

	reopened, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if reopened.UserID() != "u1" {
		t.Fatalf("expected u1 after reopen, got %q", reopened.UserID())
	}

	if err := reopened.Forget(ctx); err != nil {
		t.Fatalf("Forget() error: %v", err)
	}
	if reopened.UserID() != "" {
		t.Fatal("expected empty id after Forget")
	}
}

func TestContext_KeepsMemoryWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		FileStore: *NewFileStore(filepath.Join(t.TempDir(), "id.json")),
		saveErr:   errors.New("read-only"),
	}
	c, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := c.SetUserID(ctx, "u2"); err == nil {
		t.Fatal("expected save error")
	}
	if c.UserID() != "u2" {
		t.Fatalf("expected in-memory u2, got %q", c.UserID())
	}
}

// newTestRedisStore requires a running Redis on localhost:6379.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	store := NewRedisStoreWithClient(client, "test_profile")
	t.Cleanup(func() {
		client.Del(ctx, store.key())
		client.Close()
	})
	return store
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	id, err := store.Load(ctx)
	if err != nil || id != "" {
		t.Fatalf("expected empty id, got %q err=%v", id, err)
	}
	if err := store.Save(ctx, "u-redis"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	id, err = store.Load(ctx)
	if err != nil || id != "u-redis" {
		t.Fatalf("expected u-redis, got %q err=%v", id, err)
	}
}
