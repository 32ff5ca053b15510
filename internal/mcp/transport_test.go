package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedServer emulates an MCP server on the far end of a stdio pipe pair.
type scriptedServer struct {
	in  *io.PipeReader
	out *io.PipeWriter

	// respond maps method to a result payload; missing methods get an error
	// response, noAnswer methods get no response at all.
	respond map[string]any
}

// noAnswer scripts a method the server swallows without replying.
type noAnswer struct{}

type notificationLog struct {
	mu      sync.Mutex
	methods []string
}

func (l *notificationLog) add(method string, _ json.RawMessage) {
	l.mu.Lock()
	l.methods = append(l.methods, method)
	l.mu.Unlock()
}

func (l *notificationLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.methods...)
}

func startScriptedServer(respond map[string]any) (*scriptedServer, *StdioTransport, *notificationLog) {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	log := &notificationLog{}
	s := &scriptedServer{in: stdinR, out: stdoutW, respond: respond}
	go s.serve()

	t := newStdioFromPipes(stdinW, stdoutR, log.add, func() error {
		stdinR.Close()
		stdoutW.Close()
		return nil
	})
	return s, t, log
}

func (s *scriptedServer) serve() {
	scanner := bufio.NewScanner(s.in)
	for scanner.Scan() {
		var req jsonrpcMessage
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		if req.ID == nil {
			continue
		}
		result, ok := s.respond[req.Method]
		if !ok {
			fmt.Fprintf(s.out, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`+"\n", *req.ID)
			continue
		}
		if _, drop := result.(noAnswer); drop {
			continue
		}
		payload, _ := json.Marshal(result)
		fmt.Fprintf(s.out, `{"jsonrpc":"2.0","id":%d,"result":%s}`+"\n", *req.ID, payload)
	}
}

func (s *scriptedServer) push(line string) {
	fmt.Fprintln(s.out, line)
}

func TestStdioTransport_SendReceivesResponse(t *testing.T) {
	_, tr, _ := startScriptedServer(map[string]any{
		"ping": map[string]any{},
	})
	defer tr.Close()

	result, err := tr.Send(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(result))
}

func TestStdioTransport_ServerErrorSurfaces(t *testing.T) {
	_, tr, _ := startScriptedServer(nil)
	defer tr.Close()

	_, err := tr.Send(context.Background(), "no/such/method", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestStdioTransport_NotificationsRouted(t *testing.T) {
	srv, tr, notifications := startScriptedServer(map[string]any{
		"ping": map[string]any{},
	})
	defer tr.Close()

	srv.push(`{"jsonrpc":"2.0","method":"notifications/progress","params":{"progress":1}}`)
	// Garbage on stdout must be skipped, not kill the read loop.
	srv.push(`starting server on port 8080`)

	_, err := tr.Send(context.Background(), "ping", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(notifications.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"notifications/progress"}, notifications.snapshot())
}

func TestStdioTransport_ContextCancelUnblocksSend(t *testing.T) {
	// "slow" is swallowed by the server, so the call can only end via ctx.
	_, tr, _ := startScriptedServer(map[string]any{"slow": noAnswer{}})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tr.Send(ctx, "slow", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStdioTransport_CloseFailsInflightAndFutureCalls(t *testing.T) {
	_, tr, _ := startScriptedServer(map[string]any{"never-answered": noAnswer{}})

	done := make(chan error, 1)
	go func() {
		_, err := tr.Send(context.Background(), "never-answered", nil)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("in-flight call not released by Close")
	}

	_, err := tr.Send(context.Background(), "ping", nil)
	require.Error(t, err)

	// Close is idempotent.
	require.NoError(t, tr.Close())
}

func TestStdioTransport_RejectsEmptyCommand(t *testing.T) {
	_, err := NewStdioTransport(TransportConfig{Kind: TransportStdio}, nil, nil)
	require.Error(t, err)
}
