package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/tvshelf/imgcache/internal/cache"
	"github.com/tvshelf/imgcache/internal/config"
	"github.com/tvshelf/imgcache/internal/imagecache"
	"github.com/tvshelf/imgcache/internal/logging"
	"github.com/tvshelf/imgcache/internal/server"
	"github.com/tvshelf/imgcache/internal/settings"
)

// appRuntime 持有一次 CLI 调用所需的全部依赖。
type appRuntime struct {
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
	settings   settings.Store
	manager    *imagecache.Manager
	registry   *prometheus.Registry
}

// loadConfigAndLogger 是所有子命令共享的第一步。
func loadConfigAndLogger(configPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}

// bootstrap 遵循“配置 → 日志 → 设置存储 → blob 存储 → Manager”顺序构建运行时，
// 所有入口共享同一个 Manager 实例。
func bootstrap(ctx context.Context, configPath string) (*appRuntime, error) {
	cfg, logger, err := loadConfigAndLogger(configPath)
	if err != nil {
		return nil, err
	}

	settingsStore, err := settings.New(cfg.Settings)
	if err != nil {
		return nil, fmt.Errorf("初始化设置存储失败: %w", err)
	}

	store, err := cache.NewStore(cfg.Global.StoragePath, cache.Options{
		Client:    server.NewFetchClient(cfg),
		UserAgent: cfg.Global.UserAgent,
		MaxBytes:  cfg.Global.MaxCacheSize,
	})
	if err != nil {
		_ = settingsStore.Close()
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := imagecache.NewMetrics(registry)
	if err != nil {
		_ = settingsStore.Close()
		return nil, fmt.Errorf("注册指标失败: %w", err)
	}

	manager, err := imagecache.New(store, settingsStore, imagecache.Options{
		MaxSizeBytes:       cfg.Global.MaxCacheSize,
		TrimTargetFraction: cfg.Global.TrimTargetFraction,
		Logger:             logger,
		Metrics:            metrics,
	})
	if err != nil {
		_ = settingsStore.Close()
		return nil, fmt.Errorf("构建图片缓存失败: %w", err)
	}
	if err := manager.Initialize(ctx); err != nil {
		_ = settingsStore.Close()
		return nil, fmt.Errorf("初始化图片缓存失败: %w", err)
	}

	return &appRuntime{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		settings:   settingsStore,
		manager:    manager,
		registry:   registry,
	}, nil
}

func (r *appRuntime) Close() {
	if err := r.settings.Close(); err != nil {
		r.logger.WithError(err).WithField("action", "shutdown").Warn("关闭设置存储失败")
	}
}

// startupFields 汇总启动日志字段。
func (r *appRuntime) startupFields(action string) logrus.Fields {
	fields := logging.BaseFields(action, r.configPath)
	fields["storage_path"] = r.cfg.Global.StoragePath
	fields["max_cache_size"] = r.cfg.Global.MaxCacheSize
	fields["trim_target"] = r.cfg.Global.TrimTargetBytes()
	fields["settings_backend"] = r.cfg.Settings.Backend
	return fields
}
