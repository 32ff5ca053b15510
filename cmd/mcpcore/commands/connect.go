package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/mcpcore/internal/config"
	"github.com/opencode-ai/mcpcore/internal/event"
	"github.com/opencode-ai/mcpcore/internal/logging"
	"github.com/opencode-ai/mcpcore/internal/mcp"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the configured MCP servers and keep them healthy",
	Long: `Connect brings up every server in the config file, then keeps the
connections alive with health checks and automatic reconnection until
interrupted.`,
	RunE: runConnect,
}

func runConnect(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(settings.Servers) == 0 {
		return fmt.Errorf("no servers configured in %s", configPath)
	}

	manager := mcp.NewManager(settings.ManagerOptions())
	manager.SubscribeAll(func(e event.Event) {
		logging.Info().Str("event", string(e.Type)).Any("data", e.Data).Msg("event")
	})

	ctx := context.Background()
	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range settings.Servers {
		cfg := cfg
		g.Go(func() error {
			if err := manager.AddServer(gctx, cfg); err != nil {
				logging.Error().Str("server", cfg.Name).Err(err).Msg("connection failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	status := manager.ConnectionStatus()
	logging.Info().
		Int("connected", status.Connected).
		Int("failed", status.Failed).
		Int("total", status.Total).
		Msg("startup complete")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return manager.Shutdown(shutdownCtx)
}
