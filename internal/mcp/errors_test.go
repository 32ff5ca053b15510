package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opencode-ai/mcpcore/internal/ssrf"
)

func TestErrorKindExtraction(t *testing.T) {
	base := newError(KindNotConnected, "server fs is not connected")
	assert.Equal(t, KindNotConnected, Kind(base))
	assert.True(t, IsKind(base, KindNotConnected))

	wrapped := fmt.Errorf("calling tool: %w", base)
	assert.Equal(t, KindNotConnected, Kind(wrapped))

	assert.Equal(t, ErrorKind(""), Kind(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), Kind(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("broken pipe")
	err := wrapError(KindConnectFailed, "connection failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "CONNECT_FAILED")
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestSSRFErrorCarriesCategory(t *testing.T) {
	err := ssrfError("http://10.0.0.1/mcp", ssrf.Result{
		Category: ssrf.CategoryPrivateIP,
		Reason:   ssrf.ReasonRFC1918,
	})
	assert.Equal(t, KindSSRFBlocked, err.Kind)
	assert.Equal(t, ssrf.CategoryPrivateIP, err.Category)
	assert.Contains(t, err.Error(), "rfc1918")
	assert.True(t, permanent(err))
}

func TestPermanentErrors(t *testing.T) {
	assert.True(t, permanent(newError(KindInvalidConfig, "bad")))
	assert.True(t, permanent(newError(KindSSRFBlocked, "blocked")))
	assert.False(t, permanent(newError(KindConnectFailed, "refused")))
	assert.False(t, permanent(newError(KindConnectTimeout, "slow")))
	assert.False(t, permanent(errors.New("plain")))
}

func TestClassifyErrors(t *testing.T) {
	assert.Equal(t, KindConnectTimeout, classifyConnectErr(context.DeadlineExceeded).Kind)
	assert.Equal(t, KindConnectFailed, classifyConnectErr(errors.New("refused")).Kind)
	assert.Equal(t, KindConnectTimeout, classifyConnectErr(fmt.Errorf("dial: %w", context.DeadlineExceeded)).Kind)

	assert.Equal(t, KindInvokeTimeout, classifyInvokeErr("s.t", context.DeadlineExceeded).Kind)
	assert.Equal(t, KindInvokeFailed, classifyInvokeErr("s.t", errors.New("boom")).Kind)
}

func TestSanitizeError(t *testing.T) {
	assert.Equal(t, "", sanitizeError(nil))
	assert.Equal(t, "a b c", sanitizeError(errors.New("a\n b\t\tc")))

	long := sanitizeError(errors.New(strings.Repeat("x", 2000)))
	assert.Len(t, long, 512+len("..."))
	assert.True(t, strings.HasSuffix(long, "..."))
}
