package imagecache

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	maxSegmentLen  = 64
	defaultSegment = "blob"
)

// DeriveKey 将图片 URL 映射为文件系统安全的 blob 名称：
// <xxhash64(url) 16 位十六进制>_<清洗后的末段文件名>。
// 哈希覆盖完整 URL，末段只用于可读性；空 URL 返回空字符串。
func DeriveKey(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	return fmt.Sprintf("%016x_%s", xxhash.Sum64String(rawURL), sanitizeSegment(lastSegment(rawURL)))
}

func lastSegment(rawURL string) string {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	} else if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// sanitizeSegment 将 [A-Za-z0-9.] 之外的字符替换为 '_'。
func sanitizeSegment(segment string) string {
	var b strings.Builder
	for _, r := range segment {
		if b.Len() >= maxSegmentLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return defaultSegment
	}
	return out
}
