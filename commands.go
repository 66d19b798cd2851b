package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tvshelf/imgcache/internal/imagecache"
	"github.com/tvshelf/imgcache/internal/logging"
	"github.com/tvshelf/imgcache/internal/server"
	"github.com/tvshelf/imgcache/internal/version"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve cached images over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			app, err := server.NewApp(server.AppOptions{
				Logger:   rt.logger,
				Cache:    rt.manager,
				Gatherer: rt.registry,
			})
			if err != nil {
				return fmt.Errorf("HTTP 服务构建失败: %w", err)
			}

			fields := rt.startupFields("startup")
			fields["listen_port"] = rt.cfg.Global.ListenPort
			fields["version"] = version.Full()
			rt.logger.WithFields(fields).Info("配置加载完成")

			rt.logger.WithFields(logrus.Fields{
				"action": "listen",
				"port":   rt.cfg.Global.ListenPort,
			}).Info("Fiber 服务启动")

			if err := app.Listen(fmt.Sprintf(":%d", rt.cfg.Global.ListenPort)); err != nil {
				return fmt.Errorf("HTTP 服务启动失败: %w", err)
			}
			return nil
		},
	}
}

func newCheckConfigCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger(opts.configPath)
			if err != nil {
				return err
			}
			fields := logging.BaseFields("check_config", opts.configPath)
			fields["max_cache_size"] = cfg.Global.MaxCacheSize
			fields["settings_backend"] = cfg.Settings.Backend
			fields["result"] = "ok"
			logger.WithFields(fields).Info("配置校验通过")
			return nil
		},
	}
}

func newResolveCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>...",
		Short: "Resolve image URLs to local files, downloading on miss",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			for _, url := range args {
				res := rt.manager.ResolveBlob(cmd.Context(), url)
				fmt.Fprintf(out, "%s\t%s\n", resolutionLabel(res), res.Ref)
			}
			return nil
		},
	}
}

func newSizeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the current cache size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			printStats(cmd.OutOrStdout(), rt.manager.Stats())
			return nil
		},
	}
}

func newRecomputeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Recompute the cache size from disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.manager.RecomputeSize(cmd.Context()); err != nil {
				return fmt.Errorf("重算缓存大小失败: %w", err)
			}
			printStats(cmd.OutOrStdout(), rt.manager.Stats())
			return nil
		},
	}
}

func newClearCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.manager.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("清空缓存失败: %w", err)
			}
			printStats(cmd.OutOrStdout(), rt.manager.Stats())
			return nil
		},
	}
}

// newToggleCmd 构建 enable/disable 子命令；disable 会同时清空缓存。
func newToggleCmd(opts *cliOptions, name string, enabled bool) *cobra.Command {
	short := "Enable the image cache"
	if !enabled {
		short = "Disable the image cache and delete cached images"
	}
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.manager.SetEnabled(cmd.Context(), enabled); err != nil {
				return fmt.Errorf("切换缓存开关失败: %w", err)
			}
			printStats(cmd.OutOrStdout(), rt.manager.Stats())
			return nil
		},
	}
}

func resolutionLabel(res imagecache.Resolution) string {
	switch {
	case res.Hit:
		return "HIT"
	case res.Cached:
		return "MISS"
	default:
		return "BYPASS"
	}
}

func printStats(out io.Writer, stats imagecache.Stats) {
	fmt.Fprintf(out, "enabled=%t size=%.2fMB (%d bytes) max=%d target=%d\n",
		stats.Enabled, stats.SizeMB, stats.SizeBytes, stats.MaxBytes, stats.TargetBytes)
}
