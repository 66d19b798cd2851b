package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStoreDownloadAndStat(t *testing.T) {
	upstream := newImageServer(t, []byte("poster-bytes"))
	store := newTestStore(t)
	ctx := context.Background()

	blob, err := store.Download(ctx, upstream.URL+"/poster.jpg", "abc_poster.jpg")
	if err != nil {
		t.Fatalf("download error: %v", err)
	}
	if blob.SizeBytes != int64(len("poster-bytes")) {
		t.Fatalf("size mismatch: %d", blob.SizeBytes)
	}

	stat, err := store.Stat(ctx, "abc_poster.jpg")
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if stat.Path != blob.Path || stat.SizeBytes != blob.SizeBytes {
		t.Fatalf("stat mismatch: %+v vs %+v", stat, blob)
	}

	body, err := os.ReadFile(stat.Path)
	if err != nil {
		t.Fatalf("read blob error: %v", err)
	}
	if string(body) != "poster-bytes" {
		t.Fatalf("payload mismatch: %s", string(body))
	}

	ok, err := store.Exists(ctx, "abc_poster.jpg")
	if err != nil || !ok {
		t.Fatalf("expected blob to exist, ok=%v err=%v", ok, err)
	}
}

func TestStoreDownloadRejectsErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer upstream.Close()

	store := newTestStore(t)
	_, err := store.Download(context.Background(), upstream.URL+"/missing.jpg", "missing.jpg")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", fetchErr.StatusCode)
	}

	names, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("failed download must not leave blobs: %v", names)
	}
}

func TestStoreDownloadEnforcesMaxBytes(t *testing.T) {
	payload := []byte(strings.Repeat("z", 100))
	declared := newImageServer(t, payload)
	chunked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 10; i++ {
			_, _ = w.Write(payload[:10])
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(chunked.Close)

	for name, srv := range map[string]*httptest.Server{"content-length": declared, "chunked": chunked} {
		t.Run(name, func(t *testing.T) {
			store, err := NewStore(t.TempDir(), Options{MaxBytes: 50})
			if err != nil {
				t.Fatalf("failed to create store: %v", err)
			}
			_, err = store.Download(context.Background(), srv.URL+"/big.jpg", "big.jpg")
			if !errors.Is(err, ErrBlobTooLarge) {
				t.Fatalf("expected ErrBlobTooLarge, got %v", err)
			}
			names, err := store.List(context.Background())
			if err != nil {
				t.Fatalf("list error: %v", err)
			}
			if len(names) != 0 {
				t.Fatalf("oversized download must not leave blobs: %v", names)
			}
		})
	}

	store, err := NewStore(t.TempDir(), Options{MaxBytes: 100})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if _, err := store.Download(context.Background(), chunked.URL+"/exact.jpg", "exact.jpg"); err != nil {
		t.Fatalf("blob exactly at the limit should be accepted: %v", err)
	}
}

func TestStoreDownloadSendsUserAgent(t *testing.T) {
	var gotUA string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, "x")
	}))
	defer upstream.Close()

	store, err := NewStore(t.TempDir(), Options{UserAgent: "imgcache-test"})
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	if _, err := store.Download(context.Background(), upstream.URL, "ua.jpg"); err != nil {
		t.Fatalf("download error: %v", err)
	}
	if gotUA != "imgcache-test" {
		t.Fatalf("user agent not forwarded: %q", gotUA)
	}
}

func TestStoreStatMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Stat(context.Background(), "missing.jpg")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err := store.Exists(context.Background(), "missing.jpg")
	if err != nil || ok {
		t.Fatalf("expected missing blob, ok=%v err=%v", ok, err)
	}
}

func TestStoreListSkipsTempFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, Options{})
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	writeFile(t, filepath.Join(dir, "b.jpg"), "b")
	writeFile(t, filepath.Join(dir, "a.jpg"), "a")
	writeFile(t, filepath.Join(dir, tempPrefix+"123"), "partial")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	names, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(names) != 2 || names[0] != "a.jpg" || names[1] != "b.jpg" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestStoreListMissingDirectory(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "absent"), Options{})
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	names, err := store.List(context.Background())
	if err != nil || len(names) != 0 {
		t.Fatalf("missing directory should list empty, names=%v err=%v", names, err)
	}
}

func TestStoreTouchRefreshesModTime(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, Options{})
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	path := filepath.Join(dir, "old.jpg")
	writeFile(t, path, "old")
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes error: %v", err)
	}

	if err := store.Touch(context.Background(), "old.jpg"); err != nil {
		t.Fatalf("touch error: %v", err)
	}
	blob, err := store.Stat(context.Background(), "old.jpg")
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if !blob.ModTime.After(past.Add(time.Hour)) {
		t.Fatalf("modtime not refreshed: %v", blob.ModTime)
	}

	if err := store.Touch(context.Background(), "missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("touching a missing blob should return ErrNotFound, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, Options{})
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	writeFile(t, filepath.Join(dir, "gone.jpg"), "data")

	if err := store.Delete(context.Background(), "gone.jpg"); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if _, err := store.Stat(context.Background(), "gone.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), "gone.jpg"); err != nil {
		t.Fatalf("deleting twice should succeed, got %v", err)
	}
}

func TestStoreResetEmptiesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	store, err := NewStore(dir, Options{})
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	if err := store.EnsureDir(context.Background()); err != nil {
		t.Fatalf("ensure dir error: %v", err)
	}
	writeFile(t, filepath.Join(dir, "a.jpg"), "a")

	for i := 0; i < 2; i++ {
		if err := store.Reset(context.Background()); err != nil {
			t.Fatalf("reset #%d error: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("directory should exist after reset: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("directory should be empty, got %d entries", len(entries))
	}
}

func TestStorePathRejectsUnsafeNames(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, tempPrefix + "x"} {
		if _, err := store.Path(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName for %q, got %v", name, err)
		}
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func newImageServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file error: %v", err)
	}
}
