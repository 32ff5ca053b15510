package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/mcpcore/internal/event"
	"github.com/opencode-ai/mcpcore/internal/lock"
	"github.com/opencode-ai/mcpcore/internal/logging"
	"github.com/opencode-ai/mcpcore/internal/ssrf"
)

// URLValidator checks an outbound URL before a transport is built.
// Injectable so tests can run against loopback servers.
type URLValidator func(url string) ssrf.Result

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	ClientName    string
	ClientVersion string

	// ConnectTimeout bounds transport construction plus handshake when a
	// server config carries no timeout of its own.
	ConnectTimeout time.Duration
	// CallTimeout bounds each tool invocation.
	CallTimeout time.Duration

	// HealthCheckInterval is the ping cadence; zero disables the loop.
	HealthCheckInterval time.Duration
	// HealthCheckTimeout bounds each ping.
	HealthCheckTimeout time.Duration

	ReconnectMaxAttempts    int
	ReconnectInitialBackoff time.Duration
	ReconnectMaxBackoff     time.Duration

	// URLValidator overrides the default SSRF guard.
	URLValidator URLValidator
}

func (o *Options) normalized() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.ClientName == "" {
		opts.ClientName = "mcpcore"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = 5 * time.Second
	}
	if opts.ReconnectMaxAttempts <= 0 {
		opts.ReconnectMaxAttempts = 5
	}
	if opts.ReconnectInitialBackoff <= 0 {
		opts.ReconnectInitialBackoff = time.Second
	}
	if opts.ReconnectMaxBackoff <= 0 {
		opts.ReconnectMaxBackoff = 30 * time.Second
	}
	return opts
}

// serverEntry is the immutable record for one server. State transitions
// replace the whole record under the server's keyed lock, so readers can
// inspect an entry without locking and never see a torn update.
type serverEntry struct {
	name      ServerName
	config    ServerConfig
	state     ConnState
	transport Transport
	tools     []Tool
	prompts   []Prompt

	// pipe serializes tool calls on single-pipe transports (stdio). Shared
	// across record replacements for the same server.
	pipe *sync.Mutex
}

// Manager owns the per-server connection state machines. Lifecycle
// operations (add, remove, reconnect) are serialized per server name via a
// KeyedMutex; every URL-based transport passes the SSRF guard before any
// socket opens.
type Manager struct {
	opts  Options
	locks *lock.KeyedMutex
	bus   *event.Bus
	log   zerolog.Logger

	validate     URLValidator
	newTransport func(ctx context.Context, cfg ServerConfig, onNotify NotificationHandler) (Transport, error)

	mu         sync.RWMutex
	servers    map[ServerName]*serverEntry
	unhealthy  map[ServerName]bool
	reconnects map[ServerName]*reconnectJob
	closed     bool

	healthCancel context.CancelFunc
	healthDone   chan struct{}
}

// NewManager creates a manager and starts its health-check loop when
// configured. The manager owns its event bus; Shutdown disposes both.
func NewManager(opts *Options) *Manager {
	m := &Manager{
		opts:       opts.normalized(),
		locks:      lock.NewKeyedMutex(),
		bus:        event.NewBus(),
		log:        logging.Component("mcp"),
		servers:    make(map[ServerName]*serverEntry),
		unhealthy:  make(map[ServerName]bool),
		reconnects: make(map[ServerName]*reconnectJob),
	}
	m.newTransport = m.buildTransport

	if m.opts.URLValidator != nil {
		m.validate = m.opts.URLValidator
	} else {
		guard := ssrf.NewGuard(ssrf.AuditorFunc(func(e ssrf.AuditEvent) {
			m.bus.Publish(event.Event{Type: event.SSRFAudit, Data: e})
		}), nil)
		m.validate = guard.ValidateURL
	}

	m.startHealthLoop()
	return m
}

// Subscribe registers a handler for one event kind on this manager's bus
// and returns an unsubscribe function.
func (m *Manager) Subscribe(t event.Type, fn event.Subscriber) func() {
	return m.bus.Subscribe(t, fn)
}

// SubscribeAll registers a handler for every event kind.
func (m *Manager) SubscribeAll(fn event.Subscriber) func() {
	return m.bus.SubscribeAll(fn)
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) entry(name ServerName) *serverEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.servers[name]
}

// publish installs an entry in the registry. After Shutdown the registry is
// terminal: a late entry from an in-flight connect is closed and dropped
// instead of inserted, so no transport outlives the manager.
func (m *Manager) publish(e *serverEntry) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if e.transport != nil {
			_ = e.transport.Close()
		}
		return false
	}
	m.servers[e.name] = e
	m.mu.Unlock()
	return true
}

func (m *Manager) snapshot() []*serverEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]*serverEntry, 0, len(m.servers))
	for _, e := range m.servers {
		entries = append(entries, e)
	}
	return entries
}

// checkURL runs the SSRF guard for URL-based transports. It runs on every
// connection attempt, including reconnects; verdicts are never cached.
func (m *Manager) checkURL(cfg *ServerConfig) error {
	switch cfg.Transport.Kind {
	case TransportHTTP, TransportSSE:
		result := m.validate(cfg.Transport.URL)
		if !result.Valid {
			return ssrfError(cfg.Transport.URL, result)
		}
	}
	return nil
}

// AddServer validates the config, SSRF-checks any URL, and connects under
// the server's lock: Idle -> Connecting -> Connected or Failed. A server
// that is already Connected must be removed before it can be re-added.
func (m *Manager) AddServer(ctx context.Context, cfg ServerConfig) error {
	if m.isClosed() {
		return newError(KindShutdown, "manager is shut down")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	name := ServerName(cfg.Name)

	// The SSRF gate runs before the lock is taken, before any state
	// transition, and before any socket could open.
	if err := m.checkURL(&cfg); err != nil {
		m.bus.Publish(event.Event{Type: event.ServerError, Data: event.ServerErrorData{
			Name: name.String(), Error: sanitizeError(err),
		}})
		return err
	}

	// A manual add supersedes any scheduled reconnect for this name.
	m.cancelReconnect(name)

	return m.locks.RunExclusive(ctx, name.String(), "addServer", func() error {
		return m.connectLocked(ctx, name, cfg, false)
	})
}

// connectLocked performs one connection attempt. The caller must hold the
// server's keyed lock.
func (m *Manager) connectLocked(ctx context.Context, name ServerName, cfg ServerConfig, reconnecting bool) error {
	prev := m.entry(name)
	if prev != nil && prev.state.Kind == StateConnected && !reconnecting {
		return newError(KindInvalidConfig,
			fmt.Sprintf("server %s is already connected; remove it first", name))
	}

	// Re-validate on every attempt so a config cannot smuggle a blocked
	// URL through a reconnect.
	if err := m.checkURL(&cfg); err != nil {
		m.reportFailure(name, cfg, prev, err)
		return err
	}

	pipe := &sync.Mutex{}
	if prev != nil && prev.pipe != nil {
		pipe = prev.pipe
	}
	if prev != nil && prev.transport != nil {
		_ = prev.transport.Close()
	}

	if !m.publish(&serverEntry{name: name, config: cfg, state: connectingState(), pipe: pipe}) {
		return newError(KindShutdown, "manager is shut down")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.connectTimeout(m.opts.ConnectTimeout))
	defer cancel()

	transport, err := m.newTransport(connectCtx, cfg, m.notificationHandler(name))
	if err == nil {
		err = m.handshake(connectCtx, transport)
	}

	var tools []Tool
	var prompts []Prompt
	if err == nil {
		tools, err = m.discoverTools(connectCtx, name, transport)
	}
	if err == nil {
		prompts = m.discoverPrompts(connectCtx, name, transport)
	}

	if err != nil {
		if transport != nil {
			_ = transport.Close()
		}
		cerr := err
		if Kind(err) == "" {
			cerr = classifyConnectErr(err)
		}
		m.reportFailure(name, cfg, prev, cerr)
		return cerr
	}

	if !m.publish(&serverEntry{
		name:      name,
		config:    cfg,
		state:     connectedState(transport.Kind()),
		transport: transport,
		tools:     tools,
		prompts:   prompts,
		pipe:      pipe,
	}) {
		return newError(KindShutdown, "manager is shut down")
	}
	m.setHealthy(name)
	m.bus.Publish(event.Event{Type: event.ServerAdded, Data: event.ServerAddedData{
		Name: name.String(), ToolCount: len(tools),
	}})
	m.log.Info().
		Str("server", name.String()).
		Str("transport", string(transport.Kind())).
		Int("tools", len(tools)).
		Int("prompts", len(prompts)).
		Msg("server connected")
	return nil
}

// reportFailure records a sanitized Failed state and emits a server.error
// event. The lock is held by the caller; the state machine is never left
// mid-transition.
func (m *Manager) reportFailure(name ServerName, cfg ServerConfig, prev *serverEntry, err error) {
	msg := sanitizeError(err)
	pipe := &sync.Mutex{}
	if prev != nil && prev.pipe != nil {
		pipe = prev.pipe
	}
	m.publish(&serverEntry{name: name, config: cfg, state: failedState(msg), pipe: pipe})
	m.bus.Publish(event.Event{Type: event.ServerError, Data: event.ServerErrorData{
		Name: name.String(), Error: msg,
	}})
	m.log.Warn().Str("server", name.String()).Str("error", msg).Msg("server connection failed")
}

func (m *Manager) handshake(ctx context.Context, t Transport) error {
	raw, err := t.Send(ctx, methodInitialize, initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      implementation{Name: m.opts.ClientName, Version: m.opts.ClientVersion},
	})
	if err != nil {
		return err
	}
	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	m.log.Debug().
		Str("serverName", result.ServerInfo.Name).
		Str("protocolVersion", result.ProtocolVersion).
		Msg("handshake complete")
	return t.Notify(ctx, methodInitialized, nil)
}

func (m *Manager) discoverTools(ctx context.Context, name ServerName, t Transport) ([]Tool, error) {
	raw, err := t.Send(ctx, methodListTools, nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, td := range result.Tools {
		if problems := validateToolDescriptor(td); len(problems) > 0 {
			m.bus.Publish(event.Event{Type: event.SchemaValidationFailed, Data: event.SchemaValidationFailedData{
				Name: name.String(), Tool: td.Name, Errors: problems,
			}})
			m.log.Warn().
				Str("server", name.String()).
				Str("tool", td.Name).
				Strs("errors", problems).
				Msg("skipping tool with invalid schema")
			continue
		}
		tools = append(tools, Tool{
			Name:        QualifyTool(name, td.Name),
			Description: td.Description,
			InputSchema: td.InputSchema,
			Server:      name,
		})
	}
	return tools, nil
}

// validateToolDescriptor sanity-checks a discovered tool before it enters
// the registry.
func validateToolDescriptor(td toolDescriptor) []string {
	var problems []string
	if td.Name == "" {
		problems = append(problems, "missing tool name")
	}
	if strings.Contains(td.Name, ".") {
		problems = append(problems, "tool name must not contain '.'")
	}
	if len(td.InputSchema) > 0 {
		// The wire guarantees well-formed JSON; the schema must also be an
		// object, not a bare scalar or array.
		var schema map[string]json.RawMessage
		if err := json.Unmarshal(td.InputSchema, &schema); err != nil {
			problems = append(problems, "inputSchema is not a JSON object")
		}
	}
	return problems
}

// discoverPrompts tolerates servers without prompt support.
func (m *Manager) discoverPrompts(ctx context.Context, name ServerName, t Transport) []Prompt {
	raw, err := t.Send(ctx, methodListPrompts, nil)
	if err != nil {
		return nil
	}
	var result listPromptsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	prompts := make([]Prompt, 0, len(result.Prompts))
	for _, pd := range result.Prompts {
		prompts = append(prompts, Prompt{
			Name:        pd.Name,
			Description: pd.Description,
			Arguments:   pd.Arguments,
			Server:      name,
		})
	}
	return prompts
}

func (m *Manager) buildTransport(ctx context.Context, cfg ServerConfig, onNotify NotificationHandler) (Transport, error) {
	switch cfg.Transport.Kind {
	case TransportStdio:
		return NewStdioTransport(cfg.Transport, cfg.Env, onNotify)
	case TransportHTTP:
		return NewHTTPTransport(cfg.Transport.URL)
	case TransportSSE:
		return NewSSETransport(ctx, cfg.Transport.URL, onNotify)
	default:
		return nil, newError(KindInvalidConfig, fmt.Sprintf("unknown transport kind %q", cfg.Transport.Kind))
	}
}

// notificationHandler routes server-initiated notifications onto the bus.
func (m *Manager) notificationHandler(name ServerName) NotificationHandler {
	return func(method string, params json.RawMessage) {
		switch method {
		case methodProgress:
			var p progressParams
			if err := json.Unmarshal(params, &p); err != nil {
				return
			}
			m.bus.Publish(event.Event{Type: event.Progress, Data: event.ProgressData{
				Name: name.String(), Progress: p.Progress, Total: p.Total,
			}})
		case methodResourceUpdated:
			var p resourceUpdatedParams
			if err := json.Unmarshal(params, &p); err != nil {
				return
			}
			m.bus.Publish(event.Event{Type: event.ResourceUpdated, Data: event.ResourceUpdatedData{
				Name: name.String(), URI: p.URI,
			}})
		}
	}
}

// RemoveServer transitions a server to Idle from any state: the transport
// is closed best-effort, registries are cleared, and any scheduled
// reconnect is cancelled. The entry is removed even when close fails;
// close failures are reported, not fatal.
func (m *Manager) RemoveServer(ctx context.Context, name ServerName) error {
	if m.isClosed() {
		return newError(KindShutdown, "manager is shut down")
	}

	m.cancelReconnect(name)

	return m.locks.RunExclusive(ctx, name.String(), "removeServer", func() error {
		entry := m.entry(name)
		if entry == nil {
			return nil
		}
		if entry.transport != nil {
			if err := entry.transport.Close(); err != nil {
				m.log.Warn().Str("server", name.String()).Err(err).Msg("transport close failed during remove")
			}
		}
		m.mu.Lock()
		delete(m.servers, name)
		delete(m.unhealthy, name)
		m.mu.Unlock()

		m.bus.Publish(event.Event{Type: event.ServerRemoved, Data: event.ServerRemovedData{
			Name: name.String(),
		}})
		m.log.Info().Str("server", name.String()).Msg("server removed")
		return nil
	})
}

// CallTool invokes a qualified tool on its owning server with the per-call
// timeout. The server must be Connected. Calls on stdio transports are
// serialized per server since one pipe carries all traffic; HTTP and SSE
// calls pipeline freely.
func (m *Manager) CallTool(ctx context.Context, tool ToolName, args any) (*CallToolResult, error) {
	if m.isClosed() {
		return nil, newError(KindShutdown, "manager is shut down")
	}
	if _, err := ParseToolName(tool.String()); err != nil {
		return nil, err
	}

	name := tool.Server()
	entry := m.entry(name)
	if entry == nil || entry.state.Kind != StateConnected || entry.transport == nil {
		return nil, newError(KindNotConnected, fmt.Sprintf("server %s is not connected", name))
	}

	found := false
	for _, t := range entry.tools {
		if t.Name == tool {
			found = true
			break
		}
	}
	if !found {
		return nil, newError(KindInvokeFailed, fmt.Sprintf("tool %s is not registered", tool))
	}

	callCtx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()

	if entry.transport.Kind() == TransportStdio {
		entry.pipe.Lock()
		defer entry.pipe.Unlock()
	}

	raw, err := entry.transport.Send(callCtx, methodCallTool, callToolParams{
		Name:      tool.Tool(),
		Arguments: args,
	})
	if err != nil {
		return nil, classifyInvokeErr(tool, err)
	}

	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, wrapError(KindInvokeFailed, fmt.Sprintf("tool %s returned a malformed result", tool), err)
	}
	return &result, nil
}

// DiscoverPrompts refreshes the prompt registry of every Connected server.
// Failures are collected per server rather than aborting the sweep.
func (m *Manager) DiscoverPrompts(ctx context.Context) error {
	if m.isClosed() {
		return newError(KindShutdown, "manager is shut down")
	}

	var errs []error
	for _, e := range m.snapshot() {
		if e.state.Kind != StateConnected || e.transport == nil {
			continue
		}
		name := e.name
		err := m.locks.RunExclusive(ctx, name.String(), "discoverPrompts", func() error {
			entry := m.entry(name)
			if entry == nil || entry.state.Kind != StateConnected {
				return nil
			}
			next := *entry
			next.prompts = m.discoverPrompts(ctx, name, entry.transport)
			m.publish(&next)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ListResources aggregates resources across all Connected servers. Servers
// that fail to answer are skipped.
func (m *Manager) ListResources(ctx context.Context) ([]Resource, error) {
	if m.isClosed() {
		return nil, newError(KindShutdown, "manager is shut down")
	}

	var all []Resource
	for _, e := range m.snapshot() {
		if e.state.Kind != StateConnected || e.transport == nil {
			continue
		}
		raw, err := e.transport.Send(ctx, methodListResources, nil)
		if err != nil {
			continue
		}
		var result listResourcesResult
		if err := json.Unmarshal(raw, &result); err != nil {
			continue
		}
		for _, rd := range result.Resources {
			all = append(all, Resource{
				URI:         fmt.Sprintf("mcp://%s/%s", e.name, rd.URI),
				Name:        rd.Name,
				Description: rd.Description,
				MimeType:    rd.MimeType,
				Server:      e.name,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].URI < all[j].URI })
	return all, nil
}

// ReadResource reads one resource addressed as mcp://<server>/<uri>.
func (m *Manager) ReadResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	if m.isClosed() {
		return nil, newError(KindShutdown, "manager is shut down")
	}

	rest, ok := strings.CutPrefix(uri, "mcp://")
	if !ok {
		return nil, newError(KindInvalidConfig, fmt.Sprintf("invalid resource uri %q", uri))
	}
	server, resourceURI, ok := strings.Cut(rest, "/")
	if !ok || resourceURI == "" {
		return nil, newError(KindInvalidConfig, fmt.Sprintf("invalid resource uri %q", uri))
	}
	name, err := ParseServerName(server)
	if err != nil {
		return nil, err
	}

	entry := m.entry(name)
	if entry == nil || entry.state.Kind != StateConnected || entry.transport == nil {
		return nil, newError(KindNotConnected, fmt.Sprintf("server %s is not connected", name))
	}

	callCtx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()

	raw, err := entry.transport.Send(callCtx, methodReadResource, readResourceParams{URI: resourceURI})
	if err != nil {
		return nil, classifyInvokeErr(ToolName(uri), err)
	}
	var result readResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, wrapError(KindInvokeFailed, "malformed resource contents", err)
	}
	return result.Contents, nil
}

// Servers returns all known server names, sorted.
func (m *Manager) Servers() []ServerName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]ServerName, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ConnectionState returns the current state of a server. Unknown servers
// read as Idle.
func (m *Manager) ConnectionState(name ServerName) ConnState {
	entry := m.entry(name)
	if entry == nil {
		return idleState()
	}
	return entry.state
}

// Tools returns the tools of every Connected server, sorted by qualified
// name.
func (m *Manager) Tools() []Tool {
	var all []Tool
	for _, e := range m.snapshot() {
		if e.state.Kind != StateConnected {
			continue
		}
		all = append(all, e.tools...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Prompts returns the prompts of every Connected server.
func (m *Manager) Prompts() []Prompt {
	var all []Prompt
	for _, e := range m.snapshot() {
		if e.state.Kind != StateConnected {
			continue
		}
		all = append(all, e.prompts...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Server != all[j].Server {
			return all[i].Server < all[j].Server
		}
		return all[i].Name < all[j].Name
	})
	return all
}

// TransportType returns the transport kind of a Connected server.
func (m *Manager) TransportType(name ServerName) (TransportKind, error) {
	entry := m.entry(name)
	if entry == nil || entry.state.Kind != StateConnected {
		return "", newError(KindNotConnected, fmt.Sprintf("server %s is not connected", name))
	}
	return entry.state.Transport, nil
}

// ConnectionStatus aggregates the state machine across all servers.
func (m *Manager) ConnectionStatus() StatusSummary {
	var s StatusSummary
	for _, e := range m.snapshot() {
		s.Total++
		switch e.state.Kind {
		case StateConnected:
			s.Connected++
		case StateFailed:
			s.Failed++
		case StateConnecting:
			s.Connecting++
		}
	}
	return s
}

// IsUnhealthy reports whether the last health check for a server failed.
// Health signaling is diagnostic only; it never changes ConnectionState.
func (m *Manager) IsUnhealthy(name ServerName) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unhealthy[name]
}

// LockDiagnostics exposes the per-server lock table for diagnostics.
func (m *Manager) LockDiagnostics() []lock.Diagnostic {
	return m.locks.Diagnostics()
}

// Shutdown cancels timers, closes every transport best-effort, clears all
// registries, and disposes the event bus. Close failures are collected and
// returned together. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	jobs := m.reconnects
	m.reconnects = make(map[ServerName]*reconnectJob)
	entries := make([]*serverEntry, 0, len(m.servers))
	for _, e := range m.servers {
		entries = append(entries, e)
	}
	m.servers = make(map[ServerName]*serverEntry)
	m.unhealthy = make(map[ServerName]bool)
	healthCancel := m.healthCancel
	healthDone := m.healthDone
	m.mu.Unlock()

	for _, job := range jobs {
		job.cancel()
	}
	if healthCancel != nil {
		healthCancel()
		<-healthDone
	}

	var (
		errsMu sync.Mutex
		errs   []error
		wg     sync.WaitGroup
	)
	for _, e := range entries {
		if e.transport == nil {
			continue
		}
		e := e
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.transport.Close(); err != nil {
				errsMu.Lock()
				errs = append(errs, fmt.Errorf("close %s: %w", e.name, err))
				errsMu.Unlock()
			}
		}()
	}
	wg.Wait()

	m.locks.ClearAll()
	if err := m.bus.Close(); err != nil {
		errs = append(errs, err)
	}

	m.log.Info().Int("servers", len(entries)).Msg("manager shut down")
	return errors.Join(errs...)
}
