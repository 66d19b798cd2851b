package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const tempPrefix = ".blob-"

// Options 控制 fileStore 的下载行为。
type Options struct {
	// Client 用于下载上游图片；为空时使用 http.DefaultClient。
	Client *http.Client
	// UserAgent 非空时附加到每个下载请求。
	UserAgent string
	// MaxBytes 为单个 blob 的上限，<=0 表示不限制。
	MaxBytes int64
}

// NewStore 以 basePath 为根目录构建 blob 存储，整站复用一份实例。
func NewStore(basePath string, opts Options) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	return &fileStore{
		basePath:  abs,
		client:    client,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		now:       time.Now,
		locks:     make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一 blob 并发写入/删除。
type fileStore struct {
	basePath  string
	client    *http.Client
	userAgent string
	maxBytes  int64
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) EnsureDir(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(s.basePath, 0o755)
}

func (s *fileStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Stat(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *fileStore) Download(ctx context.Context, url, name string) (*Blob, error) {
	filePath, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	unlock := s.lockEntry(name)
	defer unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	if s.maxBytes > 0 && resp.ContentLength > s.maxBytes {
		return nil, ErrBlobTooLarge
	}

	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp(s.basePath, tempPrefix+"*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	var body io.Reader = resp.Body
	if s.maxBytes > 0 {
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && s.maxBytes > 0 && written > s.maxBytes {
		err = ErrBlobTooLarge
	}
	if err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, err
	}

	modTime := s.now()
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	return &Blob{
		Name:      name,
		Path:      filePath,
		SizeBytes: written,
		ModTime:   modTime,
	}, nil
}

func (s *fileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStore) Stat(ctx context.Context, name string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	return &Blob{
		Name:      name,
		Path:      filePath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}

func (s *fileStore) Touch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := s.Path(name)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(name)
	defer unlock()

	now := s.now()
	if err := os.Chtimes(filePath, now, now); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := s.Path(name)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(name)
	defer unlock()

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.basePath); err != nil {
		return fmt.Errorf("remove storage path: %w", err)
	}
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("recreate storage path: %w", err)
	}
	return nil
}

func (s *fileStore) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, tempPrefix) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.basePath, name), nil
}

func (s *fileStore) lockEntry(name string) func() {
	s.mu.Lock()
	lock := s.locks[name]
	if lock == nil {
		lock = &entryLock{}
		s.locks[name] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, name)
		}
		s.mu.Unlock()
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
