package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tvshelf/imgcache/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd)
		},
	}
}

// printVersion 输出注入的版本 + 提交信息。
func printVersion(cmd *cobra.Command) {
	fmt.Fprintln(cmd.OutOrStdout(), version.Full())
}
