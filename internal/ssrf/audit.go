package ssrf

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/mcpcore/internal/logging"
)

// AuditEvent records one validation verdict.
type AuditEvent struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Allowed  bool      `json:"allowed"`
	Category Category  `json:"category,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Host     string    `json:"host,omitempty"`
	At       time.Time `json:"at"`
}

// Auditor receives a structured event for every validation, pass or block.
type Auditor interface {
	Audit(AuditEvent)
}

// AuditorFunc adapts a function to the Auditor interface.
type AuditorFunc func(AuditEvent)

// Audit implements Auditor.
func (f AuditorFunc) Audit(e AuditEvent) { f(e) }

// logAuditor is the default auditor, writing verdicts to the structured log.
type logAuditor struct{}

func (logAuditor) Audit(e AuditEvent) {
	log := logging.Component("ssrf")
	evt := log.Info()
	if !e.Allowed {
		evt = log.Warn()
	}
	evt.Str("id", e.ID).
		Str("url", e.URL).
		Bool("allowed", e.Allowed).
		Str("category", string(e.Category)).
		Str("reason", e.Reason).
		Msg("url validation")
}

// audit reports a verdict. A panicking auditor must not fail validation.
func (g *Guard) audit(raw string, result Result) {
	defer func() {
		_ = recover()
	}()
	g.auditor.Audit(AuditEvent{
		ID:       ulid.Make().String(),
		URL:      raw,
		Allowed:  result.Valid,
		Category: result.Category,
		Reason:   result.Reason,
		Host:     result.Host,
		At:       time.Now(),
	})
}
