package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tvshelf/imgcache/internal/version"
)

// configEnvVar 可覆盖默认配置路径，--config 优先级更高。
const configEnvVar = "IMGCACHE_CONFIG"

// cliOptions 汇总 CLI 全局标志，便于在测试中注入。
type cliOptions struct {
	configPath string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 执行 CLI 并返回退出码，方便测试。
func run(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdOut)
	cmd.SetErr(stdErr)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	var configFlag string

	root := &cobra.Command{
		Use:   "imgcache",
		Short: "Local image cache for TV-show artwork",
		Long: `imgcache resolves remote poster and still URLs to locally cached files,
keeping the cache directory under a configured size by evicting the least
recently used images.`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.configPath = resolveConfigPath(configFlag)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 "+configEnvVar+" 覆盖）")

	root.AddCommand(
		newServeCmd(opts),
		newCheckConfigCmd(opts),
		newResolveCmd(opts),
		newSizeCmd(opts),
		newRecomputeCmd(opts),
		newClearCmd(opts),
		newToggleCmd(opts, "enable", true),
		newToggleCmd(opts, "disable", false),
		newVersionCmd(),
	)
	return root
}

// resolveConfigPath 结合环境变量与 --config 计算最终的配置路径。
func resolveConfigPath(flagValue string) string {
	path := os.Getenv(configEnvVar)
	if flagValue != "" {
		path = flagValue
	}
	if path == "" {
		path = "config.toml"
	}
	return path
}
