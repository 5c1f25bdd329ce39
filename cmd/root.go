package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mongoconn/cmd/connect"
	"mongoconn/cmd/version"
	"mongoconn/cmd/watch"
	"mongoconn/internal/flags"
)

var rootCmd = &cobra.Command{
	Use:           "mongoconn",
	Short:         "Manage a shared MongoDB connection and its topology",
	Long:          `A command-line tool to build, inspect and monitor a MongoDB topology (single node or master with replicas).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(connect.ConnectCmd)
	rootCmd.AddCommand(watch.WatchCmd)
	rootCmd.AddCommand(version.VersionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
