package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// SSETransport holds a long-lived Server-Sent-Events stream for responses
// and notifications, while requests go out as individual POSTs to the same
// endpoint. Responses may arrive inline on the POST or over the stream.
type SSETransport struct {
	endpoint string
	client   *http.Client
	pending  *pendingCalls

	onNotify NotificationHandler

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewSSETransport opens the event stream and starts its read loop. ctx
// bounds stream establishment only; the stream itself lives until Close.
func NewSSETransport(ctx context.Context, url string, onNotify NotificationHandler) (*SSETransport, error) {
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	t := &SSETransport{
		endpoint: url,
		client:   &http.Client{},
		pending:  newPendingCalls(),
		onNotify: onNotify,
		cancel:   cancel,
	}

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	type dialResult struct {
		resp *http.Response
		err  error
	}
	dialCh := make(chan dialResult, 1)
	go func() {
		resp, err := t.client.Do(req)
		dialCh <- dialResult{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case res := <-dialCh:
		if res.err != nil {
			cancel()
			return nil, res.err
		}
		if res.resp.StatusCode != http.StatusOK {
			res.resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("HTTP %d opening event stream", res.resp.StatusCode)
		}
		go t.readLoop(res.resp.Body)
		return t, nil
	}
}

// Kind implements Transport.
func (t *SSETransport) Kind() TransportKind { return TransportSSE }

// readLoop parses the SSE wire format: "data:" lines accumulate until a
// blank line terminates the event.
func (t *SSETransport) readLoop(body io.ReadCloser) {
	defer body.Close()
	defer t.pending.closeAll()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			if len(data) > 0 {
				t.dispatch(strings.Join(data, "\n"))
				data = nil
			}
		default:
			// event:/id:/retry: fields and comments are ignored.
		}
	}
}

func (t *SSETransport) dispatch(payload string) {
	var msg jsonrpcMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return
	}
	if msg.isNotification() {
		if t.onNotify != nil {
			t.onNotify(msg.Method, msg.Params)
		}
		return
	}
	t.pending.deliver(&msg)
}

// Send implements Transport.
func (t *SSETransport) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id, ch, err := t.pending.register()
	if err != nil {
		return nil, err
	}

	req := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	inline, err := t.post(ctx, req)
	if err != nil {
		t.pending.drop(id)
		return nil, err
	}
	if inline != nil {
		// Server answered on the POST itself.
		t.pending.drop(id)
		if inline.Error != nil {
			return nil, fmt.Errorf("server error %d: %s", inline.Error.Code, inline.Error.Message)
		}
		return inline.Result, nil
	}

	return awaitResponse(ctx, t.pending, id, ch)
}

// Notify implements Transport.
func (t *SSETransport) Notify(ctx context.Context, method string, params any) error {
	if t.pending.isClosed() {
		return fmt.Errorf("transport closed")
	}
	_, err := t.post(ctx, jsonrpcRequest{JSONRPC: "2.0", Method: method, Params: params})
	return err
}

// post sends one JSON-RPC message. It returns a non-nil message only when
// the server replied inline with a JSON body.
func (t *SSETransport) post(ctx context.Context, msg jsonrpcRequest) (*jsonrpcMessage, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted, resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil, nil
	}
	var inline jsonrpcMessage
	if err := json.NewDecoder(resp.Body).Decode(&inline); err != nil {
		return nil, nil
	}
	if inline.ID == nil && inline.Error == nil {
		return nil, nil
	}
	return &inline, nil
}

// Close implements Transport.
func (t *SSETransport) Close() error {
	t.closeOnce.Do(func() {
		t.pending.closeAll()
		t.cancel()
		t.client.CloseIdleConnections()
	})
	return nil
}
