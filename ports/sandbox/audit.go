package sandbox

import (
	"context"
	"sync"

	"qinfinity/clockid"
)

// AuditRecord is one logged audit event, mirroring the teacher's append-only
// AuditRecord shape from native/governance (actor, action, timestamped,
// immutable once appended).
type AuditRecord struct {
	Actor     string
	Action    string
	Details   map[string]string
	Timestamp int64 // Unix nanos, from the injected clock.
}

// AuditPort is an in-memory, append-only AuditPort, grounded on the
// teacher's AuditRecord trail in native/governance/engine.go.
type AuditPort struct {
	mu      sync.RWMutex
	records []AuditRecord
	clock   clockid.Clock
}

// NewAuditPort constructs an empty sandbox AuditPort.
func NewAuditPort(clock clockid.Clock) *AuditPort {
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	return &AuditPort{clock: clock}
}

// LogEvent implements ports.AuditPort.
func (a *AuditPort) LogEvent(_ context.Context, actor, action string, details map[string]string) error {
	cloned := make(map[string]string, len(details))
	for k, v := range details {
		cloned[k] = v
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, AuditRecord{
		Actor:     actor,
		Action:    action,
		Details:   cloned,
		Timestamp: a.clock.Now().UnixNano(),
	})
	return nil
}

// Records returns a defensive copy of every logged audit record, in
// append order.
func (a *AuditPort) Records() []AuditRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AuditRecord, len(a.records))
	copy(out, a.records)
	return out
}

// ForActor returns every record logged by actor, in append order.
func (a *AuditPort) ForActor(actor string) []AuditRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []AuditRecord
	for _, rec := range a.records {
		if rec.Actor == actor {
			out = append(out, rec)
		}
	}
	return out
}
