package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opencode-ai/mcpcore/internal/lock"
	"github.com/opencode-ai/mcpcore/internal/ssrf"
)

// ErrorKind tags every failure with a machine-readable category sufficient
// to drive UI display without inspecting internals.
type ErrorKind string

const (
	KindInvalidConfig  ErrorKind = "INVALID_CONFIG"
	KindSSRFBlocked    ErrorKind = "SSRF_BLOCKED"
	KindConnectTimeout ErrorKind = "CONNECT_TIMEOUT"
	KindConnectFailed  ErrorKind = "CONNECT_FAILED"
	KindNotConnected   ErrorKind = "NOT_CONNECTED"
	KindInvokeTimeout  ErrorKind = "INVOKE_TIMEOUT"
	KindInvokeFailed   ErrorKind = "INVOKE_FAILED"
	KindShutdown       ErrorKind = "SHUTDOWN_IN_PROGRESS"
)

// ErrLockAlreadyReleased is the programming-error sentinel from the lock
// package, re-exported so callers have the full taxonomy in one place.
var ErrLockAlreadyReleased = lock.ErrAlreadyReleased

// Error is the typed error returned across the manager's public boundary.
type Error struct {
	Kind     ErrorKind
	Category ssrf.Category // set for KindSSRFBlocked
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ssrfError(url string, result ssrf.Result) *Error {
	msg := fmt.Sprintf("url %s blocked (%s)", url, result.Category)
	if result.Reason != "" {
		msg += ": " + result.Reason
	}
	return &Error{Kind: KindSSRFBlocked, Category: result.Category, Message: msg}
}

// Kind extracts the ErrorKind from err, or empty when err is not a manager
// error.
func Kind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return Kind(err) == kind
}

// permanent reports whether an error must never be retried by the
// reconnection scheduler.
func permanent(err error) bool {
	switch Kind(err) {
	case KindSSRFBlocked, KindInvalidConfig:
		return true
	}
	return false
}

// classifyConnectErr maps a connection failure onto the taxonomy, surfacing
// context expiry as a typed timeout.
func classifyConnectErr(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(KindConnectTimeout, "connection timed out", err)
	}
	return wrapError(KindConnectFailed, "connection failed", err)
}

// classifyInvokeErr does the same for tool invocations.
func classifyInvokeErr(tool ToolName, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(KindInvokeTimeout, fmt.Sprintf("tool %s timed out", tool), err)
	}
	return wrapError(KindInvokeFailed, fmt.Sprintf("tool %s failed", tool), err)
}

// sanitizeError flattens an error into a single-line message safe to store
// and display.
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	const maxLen = 512
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}
