package event

// Payload types carried by manager events. Consumers (diagnostics, UI)
// type-assert Event.Data against these.

// ServerAddedData is published after a server connects and registers tools.
type ServerAddedData struct {
	Name      string `json:"name"`
	ToolCount int    `json:"toolCount"`
}

// ServerErrorData is published when a lifecycle operation fails.
type ServerErrorData struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ServerRemovedData is published after a server entry is removed.
type ServerRemovedData struct {
	Name string `json:"name"`
}

// ServerUnhealthyData is published when a health check fails.
type ServerUnhealthyData struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ReconnectionScheduledData is published when a retry timer is armed.
type ReconnectionScheduledData struct {
	Name    string `json:"name"`
	Attempt int    `json:"attempt"`
	DelayMs int64  `json:"delayMs"`
}

// ReconnectionSucceededData is published when a retry restores a connection.
type ReconnectionSucceededData struct {
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
}

// ReconnectionFailedData is published when retries are exhausted.
type ReconnectionFailedData struct {
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// ProgressData relays a server progress notification.
type ProgressData struct {
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
	Total    float64 `json:"total"`
}

// ResourceUpdatedData relays a server resource-updated notification.
type ResourceUpdatedData struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SchemaValidationFailedData is published when a discovered tool carries a
// schema the client cannot accept.
type SchemaValidationFailedData struct {
	Name   string   `json:"name"`
	Tool   string   `json:"tool"`
	Errors []string `json:"errors"`
}
