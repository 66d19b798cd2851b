package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Store 负责管理图片 blob 目录。磁盘布局遵循：
//
//	<StoragePath>/<key>    # 图片原始字节
//
// 每个条目仅由一个文件组成，Size/ModTime 由文件系统提供；ModTime 同时作为 LRU 的
// 最近使用时间。
type Store interface {
	// EnsureDir 确保 blob 目录存在。
	EnsureDir(ctx context.Context) error

	// Exists 判断 name 对应的 blob 是否存在。
	Exists(ctx context.Context, name string) (bool, error)

	// Download 从 url 拉取内容并写入 name，通过临时文件 + rename 保证原子性。
	Download(ctx context.Context, url, name string) (*Blob, error)

	// List 返回目录下全部 blob 名称（忽略临时文件与子目录）。
	List(ctx context.Context) ([]string, error)

	// Stat 返回 blob 描述，不存在时返回 ErrNotFound。
	Stat(ctx context.Context, name string) (*Blob, error)

	// Touch 将 blob 的 ModTime 刷新为当前时间。
	Touch(ctx context.Context, name string) error

	// Delete 删除 blob，不存在时视为成功。
	Delete(ctx context.Context, name string) error

	// Reset 删除整个 blob 目录并重新创建为空目录。
	Reset(ctx context.Context) error

	// Path 返回 name 对应的绝对路径，即 blob 的本地引用。
	Path(name string) (string, error)
}

// Blob 描述一个已落盘的缓存条目。
type Blob struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ErrNotFound 表示 blob 不存在。
var ErrNotFound = errors.New("cache blob not found")

// ErrInvalidName 表示 blob 名称不是单一、安全的路径元素。
var ErrInvalidName = errors.New("invalid blob name")

// ErrBlobTooLarge 表示上游响应超过 Options.MaxBytes。
var ErrBlobTooLarge = errors.New("cache blob exceeds size limit")

// FetchError 表示上游返回了非 2xx 状态码。
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}
