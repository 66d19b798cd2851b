package imagecache

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/tvshelf/imgcache/internal/cache"
	"github.com/tvshelf/imgcache/internal/logging"
	"github.com/tvshelf/imgcache/internal/settings"
)

// EnabledSettingKey 是 enabled 开关在设置存储中的键名。
const EnabledSettingKey = "image_cache_enabled"

const bytesPerMB = 1024 * 1024

var (
	errEvictedOnWrite = errors.New("blob evicted immediately after write")
	errStaleWrite     = errors.New("cache cleared or disabled during download")
)

// Options 控制容量上限与 trim 目标。
type Options struct {
	MaxSizeBytes       int64
	TrimTargetFraction float64
	Logger             *logrus.Logger
	Metrics            *Metrics
}

// Manager 将图片 URL 解析为本地 blob，并维护 trackedSize 不超过 MaxSizeBytes。
// 零值不可用，必须通过 New 构建。
type Manager struct {
	store        cache.Store
	settings     settings.Store
	log          *logrus.Entry
	metrics      *Metrics
	maxSize      int64
	trimFraction float64

	mu          sync.Mutex
	enabled     bool
	trackedSize int64
	// generation 在每次 Clear 时递增，用于识别跨越 Clear 的下载。
	generation uint64

	// trimMu 串行化 trim 的 list → delete 过程。
	trimMu   sync.Mutex
	inflight singleflight.Group
}

// Resolution 是一次解析的详细结果。
type Resolution struct {
	// Ref 是调用方用于展示的引用：本地路径或原始 URL。
	Ref string
	// Cached 为 true 时 Ref 指向本地 blob。
	Cached bool
	// Hit 表示 blob 在本次调用前已存在。
	Hit bool
	Key string
}

// Stats 是缓存状态快照。
type Stats struct {
	Enabled     bool    `json:"enabled"`
	SizeBytes   int64   `json:"size_bytes"`
	SizeMB      float64 `json:"size_mb"`
	MaxBytes    int64   `json:"max_bytes"`
	TargetBytes int64   `json:"target_bytes"`
}

// New 构建 Manager；调用方需随后执行 Initialize。
func New(store cache.Store, settingsStore settings.Store, opts Options) (*Manager, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if settingsStore == nil {
		return nil, errors.New("settings store is required")
	}
	if opts.MaxSizeBytes <= 0 {
		return nil, errors.New("max size must be positive")
	}
	if opts.TrimTargetFraction <= 0 || opts.TrimTargetFraction >= 1 {
		return nil, errors.New("trim target fraction must be in (0, 1)")
	}
	return &Manager{
		store:        store,
		settings:     settingsStore,
		log:          logging.Component(opts.Logger, "imagecache"),
		metrics:      opts.Metrics,
		maxSize:      opts.MaxSizeBytes,
		trimFraction: opts.TrimTargetFraction,
		enabled:      true,
	}, nil
}

// Initialize 创建 blob 目录、加载 enabled 开关并从磁盘重算 trackedSize。
// 仅在目录无法创建时返回错误；可重复调用。
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.store.EnsureDir(ctx); err != nil {
		m.log.WithError(err).WithField("action", "ensure_dir").Error("无法创建缓存目录")
		return err
	}

	enabled := m.loadEnabled(ctx)
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()

	size, err := m.RecomputeSize(ctx)
	if err != nil {
		m.log.WithError(err).WithField("action", "initialize").Warn("初始化时重算缓存大小失败")
	}
	m.log.WithFields(logging.SizeFields("initialize", size, m.maxSize)).
		WithField("enabled", enabled).Info("图片缓存就绪")
	return nil
}

// loadEnabled 读取持久化开关，缺失或无法解析时默认启用。
func (m *Manager) loadEnabled(ctx context.Context) bool {
	raw, ok, err := m.settings.Get(ctx, EnabledSettingKey)
	if err != nil {
		m.log.WithError(err).WithField("action", "load_enabled").Warn("读取缓存开关失败，默认启用")
		return true
	}
	if !ok {
		return true
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		m.log.WithField("action", "load_enabled").WithField("value", raw).Warn("缓存开关取值非法，默认启用")
		return true
	}
	return enabled
}

// IsEnabled 返回当前是否启用缓存。
func (m *Manager) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled 持久化开关；从启用切到禁用时清空缓存。持久化失败仍会应用内存状态，
// 并返回该错误。
func (m *Manager) SetEnabled(ctx context.Context, enabled bool) error {
	persistErr := m.settings.Set(ctx, EnabledSettingKey, strconv.FormatBool(enabled))
	if persistErr != nil {
		m.log.WithError(persistErr).WithField("action", "persist_enabled").Warn("写入缓存开关失败")
	}

	m.mu.Lock()
	wasEnabled := m.enabled
	m.enabled = enabled
	m.mu.Unlock()

	if wasEnabled && !enabled {
		if err := m.Clear(ctx); err != nil && persistErr == nil {
			return err
		}
	}
	return persistErr
}

// Resolve 返回 url 对应的展示引用：命中或下载成功时为本地路径，否则原样返回 url。
func (m *Manager) Resolve(ctx context.Context, url string) string {
	return m.ResolveBlob(ctx, url).Ref
}

// ResolveBlob 与 Resolve 相同，但返回是否命中等细节。
func (m *Manager) ResolveBlob(ctx context.Context, url string) Resolution {
	if url == "" || !m.IsEnabled() {
		m.metrics.observeResolve(resultBypass)
		return Resolution{Ref: url}
	}

	key := DeriveKey(url)
	exists, err := m.store.Exists(ctx, key)
	if err != nil {
		m.log.WithError(err).WithFields(logging.ResolveFields(url, key, resultMiss)).Warn("exists_check_failed")
	}
	if exists {
		if localPath, err := m.store.Path(key); err == nil {
			if err := m.store.Touch(ctx, key); err != nil {
				m.log.WithError(err).WithFields(logging.ResolveFields(url, key, resultHit)).Debug("刷新访问时间失败")
			}
			m.metrics.observeResolve(resultHit)
			return Resolution{Ref: localPath, Cached: true, Hit: true, Key: key}
		}
	}

	// 共享下载不随领头调用方取消，超时由 http.Client 控制。
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := m.inflight.Do(key, func() (interface{}, error) {
		return m.fetch(fetchCtx, url, key)
	})
	if err != nil {
		m.metrics.observeResolve(resultError)
		m.log.WithError(err).WithFields(logging.ResolveFields(url, key, resultError)).Warn("resolve_fetch_failed")
		return Resolution{Ref: url, Key: key}
	}

	m.metrics.observeResolve(resultMiss)
	return Resolution{Ref: v.(*cache.Blob).Path, Cached: true, Key: key}
}

// fetch 下载并记账；只在 singleflight 的领头调用中执行一次。
func (m *Manager) fetch(ctx context.Context, url, key string) (*cache.Blob, error) {
	m.mu.Lock()
	generation := m.generation
	m.mu.Unlock()

	if _, err := m.store.Download(ctx, url, key); err != nil {
		return nil, err
	}
	blob, err := m.store.Stat(ctx, key)
	if err != nil {
		return nil, err
	}

	trimmed, err := m.recordWrite(ctx, generation, blob.SizeBytes)
	if err != nil {
		if derr := m.store.Delete(ctx, key); derr != nil {
			m.log.WithError(derr).WithFields(logging.ResolveFields(url, key, resultError)).Warn("删除过期下载失败")
		}
		return nil, err
	}
	m.log.WithFields(logging.ResolveFields(url, key, resultMiss)).
		WithField("size_bytes", blob.SizeBytes).Debug("已缓存图片")
	if trimmed {
		// 单张图片超过 trim 目标时可能刚写入就被淘汰。
		if ok, err := m.store.Exists(ctx, key); err != nil || !ok {
			return nil, errEvictedOnWrite
		}
	}
	return blob, nil
}

// recordWrite 累加 trackedSize，超过上限时触发 trim 并返回 true。
// 下载期间缓存被禁用或清空时不记账，返回 errStaleWrite。
func (m *Manager) recordWrite(ctx context.Context, generation uint64, n int64) (bool, error) {
	m.mu.Lock()
	if !m.enabled || m.generation != generation {
		m.mu.Unlock()
		return false, errStaleWrite
	}
	m.trackedSize += n
	size := m.trackedSize
	m.mu.Unlock()

	m.metrics.setTracked(size)
	if size <= m.maxSize {
		return false, nil
	}
	m.Trim(ctx)
	return true, nil
}

// Clear 删除整个 blob 目录后重建为空目录，并将 trackedSize 归零。
func (m *Manager) Clear(ctx context.Context) error {
	m.trimMu.Lock()
	defer m.trimMu.Unlock()

	m.mu.Lock()
	m.generation++
	m.mu.Unlock()

	if err := m.store.Reset(ctx); err != nil {
		m.log.WithError(err).WithField("action", "clear").Error("清空缓存失败")
		if _, rerr := m.recompute(ctx); rerr != nil {
			m.log.WithError(rerr).WithField("action", "clear").Warn("清空失败后重算大小失败")
		}
		return err
	}

	m.setTrackedSize(0)
	m.log.WithField("action", "cache_cleared").Info("缓存已清空")
	return nil
}

// CurrentSizeMB 返回 trackedSize 的 MB 表示，保留两位小数，仅用于展示。
func (m *Manager) CurrentSizeMB() float64 {
	m.mu.Lock()
	size := m.trackedSize
	m.mu.Unlock()
	return toMB(size)
}

// TrackedSize 返回当前记录的字节数。
func (m *Manager) TrackedSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackedSize
}

// RecomputeSize 以磁盘为准重算 trackedSize。
func (m *Manager) RecomputeSize(ctx context.Context) (int64, error) {
	m.trimMu.Lock()
	defer m.trimMu.Unlock()
	return m.recompute(ctx)
}

// Stats 返回缓存状态快照。
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	enabled, size := m.enabled, m.trackedSize
	m.mu.Unlock()
	return Stats{
		Enabled:     enabled,
		SizeBytes:   size,
		SizeMB:      toMB(size),
		MaxBytes:    m.maxSize,
		TargetBytes: m.targetBytes(),
	}
}

// recompute 调用方需持有 trimMu。列举失败时保留原值。
func (m *Manager) recompute(ctx context.Context) (int64, error) {
	names, err := m.store.List(ctx)
	if err != nil {
		return m.TrackedSize(), err
	}

	var total int64
	for _, name := range names {
		blob, err := m.store.Stat(ctx, name)
		if err != nil {
			if !errors.Is(err, cache.ErrNotFound) {
				m.log.WithError(err).WithFields(logrus.Fields{"action": "recompute", "key": name}).Warn("stat_failed")
			}
			continue
		}
		total += blob.SizeBytes
	}

	m.setTrackedSize(total)
	return total, nil
}

func (m *Manager) setTrackedSize(size int64) {
	m.mu.Lock()
	m.trackedSize = size
	m.mu.Unlock()
	m.metrics.setTracked(size)
}

func (m *Manager) targetBytes() int64 {
	return int64(float64(m.maxSize) * m.trimFraction)
}

func toMB(size int64) float64 {
	return math.Round(float64(size)/bytesPerMB*100) / 100
}
