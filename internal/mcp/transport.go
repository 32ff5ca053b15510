package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// NotificationHandler receives server-initiated notifications (progress,
// resource updates) routed off the transport's read loop.
type NotificationHandler func(method string, params json.RawMessage)

// Transport is the uniform channel carrying JSON-RPC messages to one server.
// Implementations are safe for concurrent use; whether concurrent Sends
// interleave on the wire or pipeline is a per-transport property the manager
// accounts for.
type Transport interface {
	// Kind identifies the concrete channel.
	Kind() TransportKind
	// Send issues a request and blocks for its response or ctx expiry.
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
	// Notify sends a fire-and-forget notification.
	Notify(ctx context.Context, method string, params any) error
	// Close tears down the channel. Idempotent.
	Close() error
}

// pendingCalls tracks in-flight request IDs awaiting responses on a
// streaming transport.
type pendingCalls struct {
	mu     sync.Mutex
	nextID int64
	calls  map[int64]chan *jsonrpcMessage
	closed bool
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{calls: make(map[int64]chan *jsonrpcMessage)}
}

func (p *pendingCalls) register() (int64, chan *jsonrpcMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, nil, fmt.Errorf("transport closed")
	}
	p.nextID++
	ch := make(chan *jsonrpcMessage, 1)
	p.calls[p.nextID] = ch
	return p.nextID, ch, nil
}

func (p *pendingCalls) drop(id int64) {
	p.mu.Lock()
	delete(p.calls, id)
	p.mu.Unlock()
}

// deliver routes a response to its waiting caller. Unmatched responses are
// discarded.
func (p *pendingCalls) deliver(msg *jsonrpcMessage) {
	if msg.ID == nil {
		return
	}
	p.mu.Lock()
	ch, ok := p.calls[*msg.ID]
	if ok {
		delete(p.calls, *msg.ID)
	}
	p.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// closeAll fails every in-flight call and rejects future registration.
func (p *pendingCalls) closeAll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for id, ch := range p.calls {
		close(ch)
		delete(p.calls, id)
	}
	p.mu.Unlock()
}

func (p *pendingCalls) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// awaitResponse resolves one registered call against ctx.
func awaitResponse(ctx context.Context, p *pendingCalls, id int64, ch chan *jsonrpcMessage) (json.RawMessage, error) {
	select {
	case msg, ok := <-ch:
		if !ok || msg == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if msg.Error != nil {
			return nil, fmt.Errorf("server error %d: %s", msg.Error.Code, msg.Error.Message)
		}
		return msg.Result, nil
	case <-ctx.Done():
		p.drop(id)
		return nil, ctx.Err()
	}
}

// StdioTransport speaks newline-delimited JSON-RPC over the stdin/stdout of
// a subprocess. A single pipe carries all traffic, so the manager serializes
// tool calls on it.
type StdioTransport struct {
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	closer  func() error
	pending *pendingCalls

	onNotify NotificationHandler

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewStdioTransport launches the configured command and starts the read
// loop. The subprocess lives until Close kills it.
func NewStdioTransport(cfg TransportConfig, env map[string]string, onNotify NotificationHandler) (*StdioTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	closer := func() error {
		if cmd.Process == nil {
			return nil
		}
		killErr := cmd.Process.Kill()
		// Reap the child so it does not linger as a zombie.
		go func() { _ = cmd.Wait() }()
		return killErr
	}

	t := newStdioFromPipes(stdin, stdout, onNotify, closer)
	return t, nil
}

// newStdioFromPipes wires a transport over arbitrary pipes. Tests use this
// with in-memory pipes and a scripted responder.
func newStdioFromPipes(stdin io.WriteCloser, stdout io.Reader, onNotify NotificationHandler, closer func() error) *StdioTransport {
	t := &StdioTransport{
		stdin:    stdin,
		stdout:   bufio.NewReader(stdout),
		closer:   closer,
		pending:  newPendingCalls(),
		onNotify: onNotify,
	}
	go t.readLoop()
	return t
}

// Kind implements Transport.
func (t *StdioTransport) Kind() TransportKind { return TransportStdio }

func (t *StdioTransport) readLoop() {
	for {
		line, err := t.stdout.ReadBytes('\n')
		if err != nil {
			t.pending.closeAll()
			return
		}

		var msg jsonrpcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			// Servers may write diagnostics to stdout; skip anything that
			// is not a JSON-RPC envelope.
			continue
		}

		if msg.isNotification() {
			if t.onNotify != nil {
				t.onNotify(msg.Method, msg.Params)
			}
			continue
		}
		t.pending.deliver(&msg)
	}
}

// Send implements Transport.
func (t *StdioTransport) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id, ch, err := t.pending.register()
	if err != nil {
		return nil, err
	}

	req := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := t.writeMessage(req); err != nil {
		t.pending.drop(id)
		return nil, err
	}

	return awaitResponse(ctx, t.pending, id, ch)
}

// Notify implements Transport.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	if t.pending.isClosed() {
		return fmt.Errorf("transport closed")
	}
	return t.writeMessage(jsonrpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (t *StdioTransport) writeMessage(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.stdin.Write(append(payload, '\n'))
	return err
}

// Close implements Transport.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.pending.closeAll()
		_ = t.stdin.Close()
		if t.closer != nil {
			t.closeErr = t.closer()
		}
	})
	return t.closeErr
}
