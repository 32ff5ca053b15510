package ssrf

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noDNS fails every lookup so tests exercise only literal-IP paths.
func noDNS(host string) ([]netip.Addr, error) {
	return nil, errors.New("no DNS in tests")
}

func newTestGuard() *Guard {
	return NewGuard(AuditorFunc(func(AuditEvent) {}), noDNS)
}

func TestValidateURL_Categories(t *testing.T) {
	g := newTestGuard()

	tests := []struct {
		name     string
		url      string
		category Category
		reason   string
	}{
		{"plain public", "http://example.com/mcp", "", ""},
		{"https public", "https://api.example.com:8443/sse", "", ""},

		{"file scheme", "file:///etc/passwd", CategoryInvalidProtocol, ""},
		{"ftp scheme", "ftp://example.com", CategoryInvalidProtocol, ""},
		{"gopher scheme", "gopher://example.com", CategoryInvalidProtocol, ""},
		{"data scheme", "data:text/plain,hello", CategoryInvalidProtocol, ""},
		{"no scheme", "example.com/path", CategoryInvalidProtocol, ""},

		{"empty host", "http://", CategoryInvalidURL, ""},

		{"localhost", "http://localhost:9000", CategoryBlockedHostname, ""},
		{"localhost subdomain", "http://foo.localhost", CategoryBlockedHostname, ""},
		{"localhost uppercase", "http://LOCALHOST", CategoryBlockedHostname, ""},
		{"zeros", "http://0.0.0.0:8080", CategoryBlockedHostname, ""},
		{"ipv6 loopback", "http://[::1]:8080", CategoryBlockedHostname, ""},
		{"ipv6 unspecified", "http://[::]:8080", CategoryBlockedHostname, ""},
		{"gcp metadata", "http://metadata.google.internal/computeMetadata/v1/", CategoryBlockedHostname, ""},
		{"k8s api", "https://kubernetes.default.svc", CategoryBlockedHostname, ""},
		{"cluster local", "http://redis.ns.svc.cluster.local", CategoryBlockedHostname, ""},

		{"loopback", "http://127.0.0.1:9000", CategoryPrivateIP, ReasonLoopback},
		{"loopback range", "http://127.8.9.10", CategoryPrivateIP, ReasonLoopback},
		{"rfc1918 10/8", "http://10.0.0.1", CategoryPrivateIP, ReasonRFC1918},
		{"rfc1918 172.16/12", "http://172.16.5.4:3000", CategoryPrivateIP, ReasonRFC1918},
		{"rfc1918 172.31", "http://172.31.255.1", CategoryPrivateIP, ReasonRFC1918},
		{"rfc1918 192.168/16", "https://192.168.1.1", CategoryPrivateIP, ReasonRFC1918},
		{"link local", "http://169.254.1.1", CategoryPrivateIP, ReasonLinkLocal},
		{"cloud metadata ip", "http://169.254.169.254/latest/meta-data/", CategoryPrivateIP, ReasonMetadata},
		{"multicast", "http://224.0.0.1", CategoryPrivateIP, ReasonMulticast},
		{"multicast high", "http://239.255.255.250", CategoryPrivateIP, ReasonMulticast},
		{"reserved", "http://240.0.0.1", CategoryPrivateIP, ReasonReserved},
		{"broadcast", "http://255.255.255.255", CategoryPrivateIP, ReasonBroadcast},
		{"ipv6 unique local", "http://[fd12:3456::1]", CategoryPrivateIP, ReasonUniqueLocal},
		{"ipv6 link local", "http://[fe80::1]", CategoryPrivateIP, ReasonLinkLocal},
		{"ipv4 mapped loopback", "http://[::ffff:127.0.0.1]", CategoryPrivateIP, ReasonLoopback},

		{"public boundary 172.32", "http://172.32.0.1", "", ""},
		{"public boundary 11", "http://11.0.0.1", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := g.ValidateURL(tt.url)
			if tt.category == "" {
				assert.True(t, result.Valid, "expected valid, got %+v", result)
				return
			}
			assert.False(t, result.Valid)
			assert.Equal(t, tt.category, result.Category)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, result.Reason)
			}
		})
	}
}

func TestValidateURL_EncodedIPLiterals(t *testing.T) {
	g := newTestGuard()

	tests := []struct {
		name   string
		url    string
		reason string
	}{
		{"hex loopback", "http://0x7f000001", ReasonLoopback},
		{"decimal loopback", "http://2130706433", ReasonLoopback},
		{"octal loopback", "http://0177.0.0.1", ReasonLoopback},
		{"hex octets", "http://0x7f.0x0.0x0.0x1", ReasonLoopback},
		{"short form loopback", "http://127.1", ReasonLoopback},
		{"decimal rfc1918", "http://167772161", ReasonRFC1918}, // 10.0.0.1
		{"hex metadata", "http://0xa9fea9fe", ReasonMetadata},  // 169.254.169.254
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := g.ValidateURL(tt.url)
			require.False(t, result.Valid, "encoded literal must be canonicalized: %+v", result)
			assert.Equal(t, CategoryPrivateIP, result.Category)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}
}

func TestValidateURL_Totality(t *testing.T) {
	g := newTestGuard()

	inputs := []string{
		"",
		" ",
		"http://",
		"://missing",
		"%%%",
		"http://exa mple.com",
		"http://\x00",
		"not a url at all",
		"http://[not-an-ipv6",
		"999.999.999.999",
		"http://0x.0x.0x.0x",
	}

	for _, input := range inputs {
		assert.NotPanics(t, func() {
			result := g.ValidateURL(input)
			// Garbage never validates as a usable http(s) URL.
			if result.Valid {
				assert.NotEmpty(t, result.Host)
			}
		}, "input %q", input)
	}
}

func TestValidateURL_ResolvedHostnames(t *testing.T) {
	public := netip.MustParseAddr("93.184.216.34")
	private := netip.MustParseAddr("10.1.2.3")

	t.Run("public resolution passes", func(t *testing.T) {
		g := NewGuard(AuditorFunc(func(AuditEvent) {}), func(host string) ([]netip.Addr, error) {
			return []netip.Addr{public}, nil
		})
		result := g.ValidateURL("http://example.com")
		assert.True(t, result.Valid)
		assert.Equal(t, "93.184.216.34", result.ResolvedIP)
	})

	t.Run("private resolution blocks", func(t *testing.T) {
		g := NewGuard(AuditorFunc(func(AuditEvent) {}), func(host string) ([]netip.Addr, error) {
			return []netip.Addr{public, private}, nil
		})
		result := g.ValidateURL("http://rebind.example.com")
		assert.False(t, result.Valid)
		assert.Equal(t, CategoryPrivateIP, result.Category)
		assert.Equal(t, ReasonRFC1918, result.Reason)
		assert.Equal(t, "10.1.2.3", result.ResolvedIP)
	})

	t.Run("resolution failure is not a block", func(t *testing.T) {
		g := newTestGuard()
		result := g.ValidateURL("http://unresolvable.example.com")
		assert.True(t, result.Valid)
		assert.Empty(t, result.ResolvedIP)
	})
}

func TestValidateURL_AuditsEveryCall(t *testing.T) {
	var events []AuditEvent
	g := NewGuard(AuditorFunc(func(e AuditEvent) {
		events = append(events, e)
	}), noDNS)

	g.ValidateURL("http://example.com")
	g.ValidateURL("http://127.0.0.1")

	require.Len(t, events, 2)
	assert.True(t, events[0].Allowed)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[1].Allowed)
	assert.Equal(t, CategoryPrivateIP, events[1].Category)
	assert.Equal(t, "http://127.0.0.1", events[1].URL)
}

func TestValidateURL_AuditPanicNeverFailsValidation(t *testing.T) {
	g := NewGuard(AuditorFunc(func(AuditEvent) {
		panic("audit sink down")
	}), noDNS)

	var result Result
	assert.NotPanics(t, func() {
		result = g.ValidateURL("http://127.0.0.1")
	})
	assert.False(t, result.Valid)
	assert.Equal(t, CategoryPrivateIP, result.Category)
}

func TestParseIPLiteral(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"127.0.0.1", "127.0.0.1", true},
		{"0x7f000001", "127.0.0.1", true},
		{"2130706433", "127.0.0.1", true},
		{"0177.0.0.1", "127.0.0.1", true},
		{"127.1", "127.0.0.1", true},
		{"10.0.513", "10.0.2.1", true},
		{"::1", "::1", true},
		{"example.com", "", false},
		{"256.1.1.1", "", false},
		{"1.2.3.4.5", "", false},
		{"", "", false},
		{"0x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			addr, ok := parseIPLiteral(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, addr.String())
			}
		})
	}
}
