// Package mcp implements the client-side MCP connection core: validated
// identifiers, per-server connection state machines, stdio/HTTP/SSE
// transports, and the connection manager that ties them together behind a
// keyed lock and an SSRF guard.
package mcp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var serverNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ServerName is a validated server identifier. Construct via
// ParseServerName; a zero value never comes from a valid parse.
type ServerName string

// ParseServerName validates a raw server name. Names are 1-64 characters of
// letters, digits, underscore, or dash, and must not contain the "."
// separator used for qualified tool names.
func ParseServerName(raw string) (ServerName, error) {
	if !serverNamePattern.MatchString(raw) {
		return "", newError(KindInvalidConfig, fmt.Sprintf("invalid server name %q", raw))
	}
	return ServerName(raw), nil
}

func (n ServerName) String() string { return string(n) }

// ToolName is a validated, qualified tool identifier of the form
// "<server>.<tool>", resolving a tool to its owning server.
type ToolName string

// ParseToolName validates a qualified tool name.
func ParseToolName(raw string) (ToolName, error) {
	server, tool, ok := strings.Cut(raw, ".")
	if !ok || tool == "" {
		return "", newError(KindInvalidConfig, fmt.Sprintf("tool name %q is not of the form server.tool", raw))
	}
	if _, err := ParseServerName(server); err != nil {
		return "", err
	}
	return ToolName(raw), nil
}

func (t ToolName) String() string { return string(t) }

// Server returns the owning server's name.
func (t ToolName) Server() ServerName {
	server, _, _ := strings.Cut(string(t), ".")
	return ServerName(server)
}

// Tool returns the unqualified tool name as the server knows it.
func (t ToolName) Tool() string {
	_, tool, _ := strings.Cut(string(t), ".")
	return tool
}

// QualifyTool builds the qualified name under which a discovered tool is
// registered.
func QualifyTool(server ServerName, tool string) ToolName {
	return ToolName(string(server) + "." + tool)
}

// TransportKind identifies the concrete I/O channel carrying MCP messages.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
	TransportSSE   TransportKind = "sse"
)

// TransportConfig describes how to reach a server.
type TransportConfig struct {
	Kind    TransportKind `json:"kind"`
	Command string        `json:"command,omitempty"`
	Args    []string      `json:"args,omitempty"`
	URL     string        `json:"url,omitempty"`
}

// ServerConfig defines an MCP server to connect to.
type ServerConfig struct {
	Name      string            `json:"name"`
	Transport TransportConfig   `json:"transport"`
	Env       map[string]string `json:"env,omitempty"`
	TimeoutMs int               `json:"timeoutMs,omitempty"`
}

// Validate checks the config shape before any connection work starts.
func (c *ServerConfig) Validate() error {
	if _, err := ParseServerName(c.Name); err != nil {
		return err
	}
	switch c.Transport.Kind {
	case TransportStdio:
		if c.Transport.Command == "" {
			return newError(KindInvalidConfig, "stdio transport requires a command")
		}
	case TransportHTTP, TransportSSE:
		if c.Transport.URL == "" {
			return newError(KindInvalidConfig, fmt.Sprintf("%s transport requires a url", c.Transport.Kind))
		}
	default:
		return newError(KindInvalidConfig, fmt.Sprintf("unknown transport kind %q", c.Transport.Kind))
	}
	if c.TimeoutMs < 0 {
		return newError(KindInvalidConfig, "timeoutMs must not be negative")
	}
	return nil
}

// connectTimeout returns the per-server connect timeout, falling back to the
// given default.
func (c *ServerConfig) connectTimeout(fallback time.Duration) time.Duration {
	if c.TimeoutMs > 0 {
		return time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return fallback
}

// Tool is a callable tool discovered from a connected server.
type Tool struct {
	Name        ToolName        `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Server      ServerName      `json:"server"`
}

// Prompt is a prompt template discovered from a connected server.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
	Server      ServerName       `json:"server"`
}

// PromptArgument describes one argument of a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Resource is a resource advertised by a connected server, addressed as
// mcp://<server>/<uri>.
type Resource struct {
	URI         string     `json:"uri"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	MimeType    string     `json:"mimeType,omitempty"`
	Server      ServerName `json:"server"`
}

// ResourceContent is one content block of a read resource.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// Content is one block of a tool call result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// CallToolResult is the typed result of a tool invocation.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text concatenates the text blocks of the result.
func (r *CallToolResult) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// StatusSummary aggregates connection states across all servers.
type StatusSummary struct {
	Connected  int `json:"connected"`
	Failed     int `json:"failed"`
	Connecting int `json:"connecting"`
	Total      int `json:"total"`
}
