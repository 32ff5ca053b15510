// Package ssrf validates outbound URLs before any socket is opened,
// preventing server configurations from steering the host's network stack at
// internal infrastructure. Validation is pure and total: any string input
// yields a Result, never a panic.
package ssrf

import (
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// Category classifies why a URL was rejected.
type Category string

const (
	CategoryInvalidURL      Category = "INVALID_URL"
	CategoryInvalidProtocol Category = "INVALID_PROTOCOL"
	CategoryBlockedHostname Category = "BLOCKED_HOSTNAME"
	CategoryPrivateIP       Category = "PRIVATE_IP"
)

// Sub-reasons attached to PRIVATE_IP rejections.
const (
	ReasonLoopback    = "loopback"
	ReasonUnspecified = "unspecified"
	ReasonRFC1918     = "rfc1918"
	ReasonLinkLocal   = "link_local"
	ReasonMetadata    = "cloud_metadata"
	ReasonMulticast   = "multicast"
	ReasonReserved    = "reserved"
	ReasonBroadcast   = "broadcast"
	ReasonUniqueLocal = "unique_local"
)

// Result is the outcome of validating one URL.
type Result struct {
	Valid      bool     `json:"valid"`
	Category   Category `json:"category,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Host       string   `json:"host,omitempty"`
	ResolvedIP string   `json:"resolvedIp,omitempty"`
}

func reject(category Category, reason, host, ip string) Result {
	return Result{Category: category, Reason: reason, Host: host, ResolvedIP: ip}
}

// blockedHostnames are rejected outright, before any resolution. Covers
// localhost variants, the unspecified address, cloud metadata endpoints, and
// Kubernetes internal service names.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"localhost.localdomain":    true,
	"ip6-localhost":            true,
	"ip6-loopback":             true,
	"0.0.0.0":                  true,
	"::":                       true,
	"::1":                      true,
	"metadata.google.internal": true,
	"metadata.goog":            true,
	"instance-data":            true,
	"kubernetes.default":       true,
	"kubernetes.default.svc":   true,
	"kubernetes.default.svc.cluster.local": true,
}

var blockedSuffixes = []string{".localhost", ".cluster.local", ".internal"}

// LookupFunc resolves a hostname to addresses. Injectable so tests never
// touch DNS.
type LookupFunc func(host string) ([]netip.Addr, error)

// Guard validates URLs and reports every verdict to an Auditor.
type Guard struct {
	auditor Auditor
	lookup  LookupFunc
}

// NewGuard creates a guard. A nil auditor logs verdicts; a nil lookup uses
// the system resolver.
func NewGuard(auditor Auditor, lookup LookupFunc) *Guard {
	if auditor == nil {
		auditor = logAuditor{}
	}
	if lookup == nil {
		lookup = systemLookup
	}
	return &Guard{auditor: auditor, lookup: lookup}
}

func systemLookup(host string) ([]netip.Addr, error) {
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// ValidateURL checks a raw URL against the scheme allowlist, the hostname
// blocklist, and private/reserved IP ranges. Literal IPs are canonicalized
// first so hex, decimal, and octal encodings cannot slip past the range
// checks. Every call, pass or block, is reported to the auditor; audit
// failures never affect the verdict.
func (g *Guard) ValidateURL(raw string) Result {
	result := g.validate(raw)
	g.audit(raw, result)
	return result
}

func (g *Guard) validate(raw string) Result {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return reject(CategoryInvalidURL, "unparsable URL", "", "")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return reject(CategoryInvalidProtocol, "scheme "+scheme+" not allowed", u.Hostname(), "")
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return reject(CategoryInvalidURL, "missing host", "", "")
	}

	if blockedHostnames[host] {
		return reject(CategoryBlockedHostname, "hostname is blocklisted", host, "")
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return reject(CategoryBlockedHostname, "hostname suffix "+suffix+" is blocklisted", host, "")
		}
	}

	if addr, ok := parseIPLiteral(host); ok {
		if reason := classifyAddr(addr); reason != "" {
			return reject(CategoryPrivateIP, reason, host, addr.String())
		}
		return Result{Valid: true, Host: host, ResolvedIP: addr.String()}
	}

	// Hostname: resolve now and range-check every address, so a DNS name
	// pointing at internal space is caught before the first syscall against
	// it. Resolution failure is not a block; the connection will fail on its
	// own terms.
	addrs, err := g.lookup(host)
	if err != nil || len(addrs) == 0 {
		return Result{Valid: true, Host: host}
	}
	for _, addr := range addrs {
		if reason := classifyAddr(addr); reason != "" {
			return reject(CategoryPrivateIP, reason, host, addr.String())
		}
	}
	return Result{Valid: true, Host: host, ResolvedIP: addrs[0].String()}
}

// parseIPLiteral canonicalizes a host that is an IP literal, including the
// legacy inet_aton forms: 0x7f000001, 2130706433, 0177.0.0.1, 127.1.
func parseIPLiteral(host string) (netip.Addr, bool) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), true
	}

	parts := strings.Split(host, ".")
	if len(parts) == 0 || len(parts) > 4 {
		return netip.Addr{}, false
	}
	values := make([]uint64, len(parts))
	for i, part := range parts {
		if part == "" {
			return netip.Addr{}, false
		}
		// ParseUint with base 0 accepts 0x-hex, 0-octal, and decimal.
		v, err := strconv.ParseUint(part, 0, 32)
		if err != nil {
			return netip.Addr{}, false
		}
		values[i] = v
	}

	var n uint32
	// All leading parts are single octets; the last covers the remaining
	// bytes, matching inet_aton.
	for i := 0; i < len(values)-1; i++ {
		if values[i] > 0xff {
			return netip.Addr{}, false
		}
		n = n<<8 | uint32(values[i])
	}
	last := values[len(values)-1]
	rest := 4 - (len(values) - 1)
	if last >= uint64(1)<<(8*rest) {
		return netip.Addr{}, false
	}
	n = n<<(8*rest) | uint32(last)

	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}), true
}

var cloudMetadataAddr = netip.AddrFrom4([4]byte{169, 254, 169, 254})

// classifyAddr returns a non-empty sub-reason when addr falls in a private,
// loopback, link-local, multicast, or reserved range.
func classifyAddr(addr netip.Addr) string {
	addr = addr.Unmap()

	switch {
	case addr == cloudMetadataAddr:
		return ReasonMetadata
	case addr.IsLoopback():
		return ReasonLoopback
	case addr.IsUnspecified():
		return ReasonUnspecified
	case addr.IsLinkLocalUnicast():
		return ReasonLinkLocal
	case addr.IsMulticast():
		return ReasonMulticast
	case addr.IsPrivate():
		if addr.Is6() {
			return ReasonUniqueLocal
		}
		return ReasonRFC1918
	}

	if addr.Is4() {
		b := addr.As4()
		if b == [4]byte{255, 255, 255, 255} {
			return ReasonBroadcast
		}
		if b[0] >= 240 {
			return ReasonReserved
		}
	}
	return ""
}
