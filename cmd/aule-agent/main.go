package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	target     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "aule-agent",
	Short: "Goal-directed agent for a remote 3D scene editor",
	Long: `aule-agent connects to a remote capability server (MCP over stdio or SSE),
then plans, acts, observes and reflects until a goal is reached or a budget
runs out.

Run without a subcommand to start the interactive shell.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return replCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "aule-agent.yaml", "config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&target, "target", "t", "", "capability server: script path, command line or http(s) URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(replCmd, runCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
