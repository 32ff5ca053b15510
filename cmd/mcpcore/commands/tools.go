package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/mcpcore/internal/config"
	"github.com/opencode-ai/mcpcore/internal/logging"
	"github.com/opencode-ai/mcpcore/internal/mcp"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect to the configured servers and list their tools",
	RunE:  runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(settings.Servers) == 0 {
		return fmt.Errorf("no servers configured in %s", configPath)
	}

	// One-shot discovery; the health loop has nothing to do here.
	opts := settings.ManagerOptions()
	opts.HealthCheckInterval = 0
	manager := mcp.NewManager(opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range settings.Servers {
		cfg := cfg
		g.Go(func() error {
			if err := manager.AddServer(gctx, cfg); err != nil {
				logging.Warn().Str("server", cfg.Name).Err(err).Msg("connection failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, tool := range manager.Tools() {
		fmt.Printf("%-40s %s\n", tool.Name, tool.Description)
	}
	for _, prompt := range manager.Prompts() {
		fmt.Printf("%-40s (prompt) %s\n", mcp.QualifyTool(prompt.Server, prompt.Name), prompt.Description)
	}

	return manager.Shutdown(ctx)
}
