package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的设置存储后端。
const (
	SettingsBackendFile  = "file"
	SettingsBackendRedis = "redis"
)

// GlobalConfig 描述进程级运行参数：日志、缓存目录与容量上限。
type GlobalConfig struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	StoragePath        string   `mapstructure:"StoragePath"`
	MaxCacheSize       int64    `mapstructure:"MaxCacheSize"`
	TrimTargetFraction float64  `mapstructure:"TrimTargetFraction"`
	FetchTimeout       Duration `mapstructure:"FetchTimeout"`
	UserAgent          string   `mapstructure:"UserAgent"`
}

// SettingsConfig 决定 enabled 开关等键值设置保存在哪里。
type SettingsConfig struct {
	Backend        string `mapstructure:"Backend"`
	FilePath       string `mapstructure:"FilePath"`
	RedisAddr      string `mapstructure:"RedisAddr"`
	RedisPassword  string `mapstructure:"RedisPassword"`
	RedisDB        int    `mapstructure:"RedisDB"`
	RedisNamespace string `mapstructure:"RedisNamespace"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Settings SettingsConfig `mapstructure:"Settings"`
}

// TrimTargetBytes 返回 trim 结束时允许保留的字节数。
func (g GlobalConfig) TrimTargetBytes() int64 {
	return int64(float64(g.MaxCacheSize) * g.TrimTargetFraction)
}
