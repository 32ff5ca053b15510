// Package commands provides the mcpcore CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/mcpcore/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	configPath string
	logLevel   string
	prettyLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "mcpcore",
	Short: "MCP connection manager",
	Long: `mcpcore manages connections to MCP servers over stdio, HTTP, and SSE:
it validates outbound URLs, discovers tools and prompts, invokes tools,
and keeps connections healthy with automatic reconnection.

Run 'mcpcore connect' to bring up the configured servers, or
'mcpcore check-url' to test a URL against the SSRF guard.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: prettyLogs,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mcpcore.json", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", false, "Human-readable log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("mcpcore %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(checkURLCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
