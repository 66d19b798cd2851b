package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tvshelf/imgcache/internal/config"
)

func TestFileStoreGetMissingKey(t *testing.T) {
	store := newTestFileStore(t)
	value, ok, err := store.Get(context.Background(), "image_cache_enabled")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if ok || value != "" {
		t.Fatalf("expected missing key, got %q ok=%v", value, ok)
	}
}

func TestFileStoreSetAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	ctx := context.Background()
	if err := store.Set(ctx, "image_cache_enabled", "false"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if err := store.Set(ctx, "other", "1"); err != nil {
		t.Fatalf("set error: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	value, ok, err := reopened.Get(ctx, "image_cache_enabled")
	if err != nil || !ok || value != "false" {
		t.Fatalf("persisted value mismatch: %q ok=%v err=%v", value, ok, err)
	}
	if value, _, _ := reopened.Get(ctx, "other"); value != "1" {
		t.Fatalf("second key lost: %q", value)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("- a\n- b\n"), 0o600); err != nil {
		t.Fatalf("write error: %v", err)
	}
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	if _, _, err := store.Get(context.Background(), "image_cache_enabled"); err == nil {
		t.Fatalf("corrupt settings file should return an error")
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Fatalf("empty path should be rejected")
	}
}

func TestRedisStoreNamespaceFormatting(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	store := NewRedisStore(client, "imgcache")
	defer store.Close()
	if store.key("image_cache_enabled") != "imgcache:image_cache_enabled" {
		t.Fatalf("namespace should be suffixed with ':', got %q", store.key("image_cache_enabled"))
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	store := NewRedisStore(client, "imgcache:")
	defer store.Close()

	if _, _, err := store.Get(context.Background(), "image_cache_enabled"); err == nil {
		t.Fatalf("unreachable redis should surface an error")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	fileStore, err := New(config.SettingsConfig{
		Backend:  config.SettingsBackendFile,
		FilePath: filepath.Join(t.TempDir(), "settings.yaml"),
	})
	if err != nil {
		t.Fatalf("file backend error: %v", err)
	}
	if _, ok := fileStore.(*FileStore); !ok {
		t.Fatalf("expected *FileStore, got %T", fileStore)
	}

	redisStore, err := New(config.SettingsConfig{
		Backend:        config.SettingsBackendRedis,
		RedisAddr:      "127.0.0.1:6379",
		RedisNamespace: "test:",
	})
	if err != nil {
		t.Fatalf("redis backend error: %v", err)
	}
	defer redisStore.Close()
	if _, ok := redisStore.(*RedisStore); !ok {
		t.Fatalf("expected *RedisStore, got %T", redisStore)
	}

	if _, err := New(config.SettingsConfig{Backend: "etcd"}); err == nil {
		t.Fatalf("unknown backend should fail")
	}
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}
	return store
}
