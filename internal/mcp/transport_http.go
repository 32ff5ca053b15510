package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// HTTPTransport issues one POST per JSON-RPC request. Requests pipeline
// freely; there is no shared stream to contend for.
type HTTPTransport struct {
	url    string
	client *http.Client
	nextID int64
}

// NewHTTPTransport creates an HTTP transport for the given endpoint. The
// caller is responsible for having SSRF-validated the URL.
func NewHTTPTransport(url string) (*HTTPTransport, error) {
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	return &HTTPTransport{
		url:    url,
		client: &http.Client{},
	}, nil
}

// Kind implements Transport.
func (t *HTTPTransport) Kind() TransportKind { return TransportHTTP }

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	req := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	resp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var msg jsonrpcMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("server error %d: %s", msg.Error.Code, msg.Error.Message)
	}
	return msg.Result, nil
}

// Notify implements Transport.
func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	resp, err := t.post(ctx, jsonrpcRequest{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, msg jsonrpcRequest) (*http.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.client.Do(req)
}

// Close implements Transport. HTTP holds no persistent connection state
// beyond the client's idle pool.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
