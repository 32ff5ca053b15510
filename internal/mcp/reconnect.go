package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencode-ai/mcpcore/internal/event"
)

type reconnectJob struct {
	cancel context.CancelFunc
}

// scheduleReconnect starts a reconnection sequence for a server unless one
// is already running. At most one sequence exists per server at a time.
func (m *Manager) scheduleReconnect(name ServerName) {
	m.mu.Lock()
	if m.closed || m.reconnects[name] != nil {
		m.mu.Unlock()
		return
	}
	if _, known := m.servers[name]; !known {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	job := &reconnectJob{cancel: cancel}
	m.reconnects[name] = job
	m.mu.Unlock()

	go m.runReconnect(ctx, name, job)
}

// cancelReconnect stops any in-flight reconnection sequence for a server.
func (m *Manager) cancelReconnect(name ServerName) {
	m.mu.Lock()
	job := m.reconnects[name]
	delete(m.reconnects, name)
	m.mu.Unlock()
	if job != nil {
		job.cancel()
	}
}

func (m *Manager) clearReconnect(name ServerName, job *reconnectJob) {
	m.mu.Lock()
	if m.reconnects[name] == job {
		delete(m.reconnects, name)
	}
	m.mu.Unlock()
}

func (m *Manager) newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.ReconnectInitialBackoff
	b.MaxInterval = m.opts.ReconnectMaxBackoff
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// runReconnect drives the attempt loop: backoff, reconnect under the
// server's lock, stop on success, permanence, cancellation, or exhaustion.
// Exhaustion leaves the server in a terminal Failed state.
func (m *Manager) runReconnect(ctx context.Context, name ServerName, job *reconnectJob) {
	defer m.clearReconnect(name, job)

	b := m.newReconnectBackoff()
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= m.opts.ReconnectMaxAttempts; attempt++ {
		delay := b.NextBackOff()
		m.bus.Publish(event.Event{Type: event.ReconnectionScheduled, Data: event.ReconnectionScheduledData{
			Name: name.String(), Attempt: attempt, DelayMs: delay.Milliseconds(),
		}})
		m.log.Info().
			Str("server", name.String()).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("reconnection scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		attempts = attempt
		lastErr = m.reconnectOnce(ctx, name)
		if lastErr == nil {
			m.setHealthy(name)
			m.bus.Publish(event.Event{Type: event.ReconnectionSucceeded, Data: event.ReconnectionSucceededData{
				Name: name.String(), Attempts: attempt,
			}})
			m.log.Info().Str("server", name.String()).Int("attempts", attempt).Msg("reconnected")
			return
		}
		if errors.Is(lastErr, context.Canceled) || ctx.Err() != nil {
			return
		}
		if permanent(lastErr) {
			break
		}
	}

	reason := sanitizeError(lastErr)
	_ = m.locks.RunExclusive(context.Background(), name.String(), "reconnectExhausted", func() error {
		entry := m.entry(name)
		if entry == nil {
			return nil
		}
		if entry.transport != nil {
			_ = entry.transport.Close()
		}
		next := *entry
		next.transport = nil
		next.tools = nil
		next.prompts = nil
		next.state = failedState(fmt.Sprintf("reconnection failed after %d attempts: %s", attempts, reason))
		m.publish(&next)
		return nil
	})
	m.bus.Publish(event.Event{Type: event.ReconnectionFailed, Data: event.ReconnectionFailedData{
		Name: name.String(), Attempts: attempts, Reason: reason,
	}})
	m.log.Error().
		Str("server", name.String()).
		Int("attempts", attempts).
		Str("reason", reason).
		Msg("reconnection abandoned")
}

// reconnectOnce performs one attempt under the server's keyed lock. The
// server may have been removed while the sequence waited; that ends the
// sequence quietly.
func (m *Manager) reconnectOnce(ctx context.Context, name ServerName) error {
	return m.locks.RunExclusive(ctx, name.String(), "reconnect", func() error {
		entry := m.entry(name)
		if entry == nil {
			return context.Canceled
		}
		return m.connectLocked(ctx, name, entry.config, true)
	})
}
