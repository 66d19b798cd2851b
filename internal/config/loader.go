package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认值与 setDefaults 保持一致，供 applyGlobalDefaults 兜底。
const (
	DefaultListenPort         = 5080
	DefaultMaxCacheSize       = 100 * 1024 * 1024
	DefaultTrimTargetFraction = 0.7
	DefaultFetchTimeout       = 30 * time.Second
	DefaultRedisNamespace     = "imgcache:"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applySettingsDefaults(&cfg.Settings, cfg.Global.StoragePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	if cfg.Settings.Backend == SettingsBackendFile {
		absSettings, err := filepath.Abs(cfg.Settings.FilePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析设置文件路径: %w", err)
		}
		cfg.Settings.FilePath = absSettings
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", DefaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage/images")
	v.SetDefault("MaxCacheSize", DefaultMaxCacheSize)
	v.SetDefault("TrimTargetFraction", DefaultTrimTargetFraction)
	v.SetDefault("FetchTimeout", "30s")
	v.SetDefault("UserAgent", "")
	v.SetDefault("Settings.Backend", SettingsBackendFile)
	v.SetDefault("Settings.RedisNamespace", DefaultRedisNamespace)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = DefaultListenPort
	}
	if g.MaxCacheSize == 0 {
		g.MaxCacheSize = DefaultMaxCacheSize
	}
	if g.TrimTargetFraction == 0 {
		g.TrimTargetFraction = DefaultTrimTargetFraction
	}
	if g.FetchTimeout.DurationValue() == 0 {
		g.FetchTimeout = Duration(DefaultFetchTimeout)
	}
}

// applySettingsDefaults 在未指定文件路径时，把设置文件放在缓存目录旁边，
// 避免 Clear 删除缓存目录时顺带清掉 enabled 开关。
func applySettingsDefaults(s *SettingsConfig, storagePath string) {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = SettingsBackendFile
	}
	if s.Backend == SettingsBackendFile && s.FilePath == "" && storagePath != "" {
		s.FilePath = filepath.Join(filepath.Dir(filepath.Clean(storagePath)), "settings.yaml")
	}
	if s.RedisNamespace == "" {
		s.RedisNamespace = DefaultRedisNamespace
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
