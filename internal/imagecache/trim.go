package imagecache

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tvshelf/imgcache/internal/cache"
	"github.com/tvshelf/imgcache/internal/logging"
)

// TrimReport 汇总一次 trim 的结果。
type TrimReport struct {
	Scanned      int   `json:"scanned"`
	Evicted      int   `json:"evicted"`
	FreedBytes   int64 `json:"freed_bytes"`
	Failed       int   `json:"failed"`
	TargetBytes  int64 `json:"target_bytes"`
	TrackedBytes int64 `json:"tracked_bytes"`
}

// Trim 按 ModTime 从旧到新删除 blob，直到剩余总量不超过
// MaxSizeBytes*TrimTargetFraction；单个条目失败时跳过，最终以磁盘为准重算 trackedSize。
func (m *Manager) Trim(ctx context.Context) TrimReport {
	m.trimMu.Lock()
	defer m.trimMu.Unlock()

	target := m.targetBytes()
	report := TrimReport{TargetBytes: target}

	candidates, running := m.collectCandidates(ctx)
	report.Scanned = len(candidates)

	for _, blob := range candidates {
		if running <= target {
			break
		}
		if err := m.store.Delete(ctx, blob.Name); err != nil {
			report.Failed++
			m.log.WithError(err).WithFields(logrus.Fields{
				"action": "trim_delete_failed",
				"key":    blob.Name,
			}).Warn("淘汰条目失败，跳过")
			continue
		}
		running -= blob.SizeBytes
		report.Evicted++
		report.FreedBytes += blob.SizeBytes
		m.metrics.observeEviction(blob.SizeBytes)
	}

	tracked, err := m.recompute(ctx)
	if err != nil {
		m.log.WithError(err).WithField("action", "trim").Warn("trim 后重算大小失败")
	}
	report.TrackedBytes = tracked

	m.log.WithFields(logging.SizeFields("trim", tracked, m.maxSize)).WithFields(logrus.Fields{
		"evicted":     report.Evicted,
		"freed_bytes": report.FreedBytes,
		"failed":      report.Failed,
	}).Info("缓存淘汰完成")
	return report
}

// collectCandidates 列出全部 blob 并按 ModTime 升序排列（同一时间按名称），
// 同时返回它们的总大小。无法 stat 的条目被忽略。
func (m *Manager) collectCandidates(ctx context.Context) ([]cache.Blob, int64) {
	names, err := m.store.List(ctx)
	if err != nil {
		m.log.WithError(err).WithField("action", "trim").Warn("列举缓存目录失败")
		return nil, 0
	}

	blobs := make([]cache.Blob, 0, len(names))
	var total int64
	for _, name := range names {
		blob, err := m.store.Stat(ctx, name)
		if err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{"action": "trim", "key": name}).Debug("stat_failed")
			continue
		}
		blobs = append(blobs, *blob)
		total += blob.SizeBytes
	}

	sort.Slice(blobs, func(i, j int) bool {
		if blobs[i].ModTime.Equal(blobs[j].ModTime) {
			return blobs[i].Name < blobs[j].Name
		}
		return blobs[i].ModTime.Before(blobs[j].ModTime)
	})
	return blobs, total
}
