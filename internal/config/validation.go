package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.LogLevel) != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", fmt.Sprintf("无法识别: %s", g.LogLevel))
		}
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.MaxCacheSize <= 0 {
		return newFieldError("Global.MaxCacheSize", "必须大于 0")
	}
	if g.TrimTargetFraction <= 0 || g.TrimTargetFraction >= 1 {
		return newFieldError("Global.TrimTargetFraction", "必须在 (0, 1) 区间")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Global.FetchTimeout", "必须大于 0")
	}

	s := c.Settings
	switch s.Backend {
	case SettingsBackendFile:
		if strings.TrimSpace(s.FilePath) == "" {
			return newFieldError(settingsField("FilePath"), "file 后端需要设置文件路径")
		}
	case SettingsBackendRedis:
		if strings.TrimSpace(s.RedisAddr) == "" {
			return newFieldError(settingsField("RedisAddr"), "redis 后端需要地址")
		}
		if s.RedisDB < 0 {
			return newFieldError(settingsField("RedisDB"), "不能为负数")
		}
	default:
		return newFieldError(settingsField("Backend"), "仅支持 file|redis")
	}

	return nil
}
