package mcp

import "encoding/json"

// The wire format is deliberately minimal: newline- or event-delimited
// JSON-RPC 2.0 envelopes carrying the handful of methods this core speaks.
// The full MCP schema lives with the servers; this client only needs the
// envelope and the method payloads below.

const protocolVersion = "2024-11-05"

// Methods spoken by the client.
const (
	methodInitialize    = "initialize"
	methodInitialized   = "notifications/initialized"
	methodPing          = "ping"
	methodListTools     = "tools/list"
	methodCallTool      = "tools/call"
	methodListPrompts   = "prompts/list"
	methodListResources = "resources/list"
	methodReadResource  = "resources/read"
)

// Notifications routed from servers back to the manager.
const (
	methodProgress        = "notifications/progress"
	methodResourceUpdated = "notifications/resources/updated"
)

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// isNotification reports whether the message is a server-initiated
// notification rather than a response.
func (m *jsonrpcMessage) isNotification() bool {
	return m.ID == nil && m.Method != ""
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *jsonrpcError) Error() string {
	return e.Message
}

type implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      implementation `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      implementation `json:"serverInfo"`
}

type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type callToolParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

type promptDescriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

type listPromptsResult struct {
	Prompts []promptDescriptor `json:"prompts"`
}

type resourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type listResourcesResult struct {
	Resources []resourceDescriptor `json:"resources"`
}

type readResourceParams struct {
	URI string `json:"uri"`
}

type readResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

type progressParams struct {
	Progress float64 `json:"progress"`
	Total    float64 `json:"total,omitempty"`
}

type resourceUpdatedParams struct {
	URI string `json:"uri"`
}
