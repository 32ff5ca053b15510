package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonrpcHandler(handle func(req jsonrpcMessage) (any, *jsonrpcError)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpcMessage
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		result, rpcErr := handle(req)
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"jsonrpc": "2.0", "id": *req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestHTTPTransport_Send(t *testing.T) {
	srv := httptest.NewServer(jsonrpcHandler(func(req jsonrpcMessage) (any, *jsonrpcError) {
		assert.Equal(t, "tools/list", req.Method)
		return listToolsResult{Tools: []toolDescriptor{{Name: "echo"}}}, nil
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL)
	require.NoError(t, err)
	defer tr.Close()

	raw, err := tr.Send(context.Background(), "tools/list", nil)
	require.NoError(t, err)

	var result listToolsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "echo", result.Tools[0].Name)
}

func TestHTTPTransport_ServerError(t *testing.T) {
	srv := httptest.NewServer(jsonrpcHandler(func(req jsonrpcMessage) (any, *jsonrpcError) {
		return nil, &jsonrpcError{Code: -32601, Message: "method not found"}
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL)
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Send(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestHTTPTransport_HTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL)
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Send(context.Background(), "ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestHTTPTransport_RejectsEmptyURL(t *testing.T) {
	_, err := NewHTTPTransport("")
	require.Error(t, err)
}

// sseTestServer answers POSTs with 202 and pushes responses over the GET
// event stream, the split-channel shape of the SSE transport.
type sseTestServer struct {
	mu     sync.Mutex
	stream chan string
	srv    *httptest.Server
}

func newSSETestServer(t *testing.T, handle func(req jsonrpcMessage) (any, *jsonrpcError)) *sseTestServer {
	t.Helper()
	s := &sseTestServer{stream: make(chan string, 16)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			fl := w.(http.Flusher)
			fl.Flush()
			for msg := range s.stream {
				fmt.Fprintf(w, "data: %s\n\n", msg)
				fl.Flush()
			}
			return
		}

		var req jsonrpcMessage
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		result, rpcErr := handle(req)
		resp := map[string]any{"jsonrpc": "2.0", "id": *req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		payload, _ := json.Marshal(resp)
		s.push(string(payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(func() {
		s.mu.Lock()
		if s.stream != nil {
			close(s.stream)
			s.stream = nil
		}
		s.mu.Unlock()
		s.srv.Close()
	})
	return s
}

func (s *sseTestServer) push(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		s.stream <- msg
	}
}

func TestSSETransport_SendOverStream(t *testing.T) {
	srv := newSSETestServer(t, func(req jsonrpcMessage) (any, *jsonrpcError) {
		return map[string]any{"pong": true}, nil
	})

	tr, err := NewSSETransport(context.Background(), srv.srv.URL, nil)
	require.NoError(t, err)
	defer tr.Close()

	raw, err := tr.Send(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pong":true}`, string(raw))
}

func TestSSETransport_NotificationsRouted(t *testing.T) {
	srv := newSSETestServer(t, func(req jsonrpcMessage) (any, *jsonrpcError) {
		return map[string]any{}, nil
	})

	log := &notificationLog{}
	tr, err := NewSSETransport(context.Background(), srv.srv.URL, log.add)
	require.NoError(t, err)
	defer tr.Close()

	srv.push(`{"jsonrpc":"2.0","method":"notifications/resources/updated","params":{"uri":"file:///x"}}`)

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"notifications/resources/updated"}, log.snapshot())
}

func TestSSETransport_InlineResponseOnPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			return
		}
		var req jsonrpcMessage
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"inline":true}}`, *req.ID)
	}))
	defer srv.Close()

	tr, err := NewSSETransport(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	defer tr.Close()

	raw, err := tr.Send(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"inline":true}`, string(raw))
}

func TestSSETransport_DialRespectsContext(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := NewSSETransport(ctx, srv.URL, nil)
	require.Error(t, err)
}
