package mcp

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/mcpcore/internal/event"
)

// startHealthLoop launches the periodic ping loop when an interval is
// configured. Pings run outside the per-server locks so a stuck lifecycle
// operation cannot stall health checking.
func (m *Manager) startHealthLoop() {
	if m.opts.HealthCheckInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.healthCancel = cancel
	m.healthDone = make(chan struct{})
	go m.healthLoop(ctx)
}

func (m *Manager) healthLoop(ctx context.Context) {
	defer close(m.healthDone)

	ticker := time.NewTicker(m.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll pings every Connected server concurrently.
func (m *Manager) checkAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, e := range m.snapshot() {
		if e.state.Kind != StateConnected || e.transport == nil {
			continue
		}
		e := e
		g.Go(func() error {
			m.checkOne(gctx, e)
			return nil
		})
	}
	_ = g.Wait()
}

// checkOne pings one server. A failed ping marks the server unhealthy and
// triggers a reconnection sequence; ConnectionState is never changed here.
func (m *Manager) checkOne(ctx context.Context, e *serverEntry) {
	pingCtx, cancel := context.WithTimeout(ctx, m.opts.HealthCheckTimeout)
	defer cancel()

	_, err := e.transport.Send(pingCtx, methodPing, nil)
	if err == nil {
		m.setHealthy(e.name)
		return
	}

	m.markUnhealthy(e.name, err)
}

func (m *Manager) setHealthy(name ServerName) {
	m.mu.Lock()
	delete(m.unhealthy, name)
	m.mu.Unlock()
}

func (m *Manager) markUnhealthy(name ServerName, err error) {
	m.mu.Lock()
	already := m.unhealthy[name]
	m.unhealthy[name] = true
	m.mu.Unlock()

	if !already {
		reason := sanitizeError(err)
		m.bus.Publish(event.Event{Type: event.ServerUnhealthy, Data: event.ServerUnhealthyData{
			Name: name.String(), Error: reason,
		}})
		m.log.Warn().Str("server", name.String()).Str("reason", reason).Msg("health check failed")
	}

	m.scheduleReconnect(name)
}
