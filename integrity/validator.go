// Package integrity implements the Integrity Validator (spec §4.6):
// per-module health aggregation, cross-layer data-flow health, event-bus
// coherence, Qflow coherence, the on-demand Decentralization Attestation,
// and the Performance Gates.
package integrity

import (
	"context"
	"sync"
)

// HealthStatus is the coarse status a module health check returns.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthDegraded    HealthStatus = "degraded"
	HealthCritical    HealthStatus = "critical"
	HealthUnreachable HealthStatus = "unreachable"
)

// ModuleChecker is the narrow interface every registered module exposes
// for health aggregation.
type ModuleChecker interface {
	CheckHealth(ctx context.Context) (HealthStatus, error)
}

// ModuleCheckerFunc adapts a plain function to ModuleChecker.
type ModuleCheckerFunc func(ctx context.Context) (HealthStatus, error)

// CheckHealth implements ModuleChecker.
func (f ModuleCheckerFunc) CheckHealth(ctx context.Context) (HealthStatus, error) {
	return f(ctx)
}

type registeredModule struct {
	critical bool
	checker  ModuleChecker
}

// EventBusIntrospector is implemented by event-bus ports that expose
// coherence counters (ports/sandbox.EventBusPort does).
type EventBusIntrospector interface {
	TotalEvents() int
	ActiveSubscriptions() int
}

// Validator aggregates module health into one overall report.
type Validator struct {
	mu      sync.RWMutex
	modules map[string]registeredModule
	order   []string
	bus     EventBusIntrospector
}

// NewValidator constructs a Validator. bus may be nil if event-bus
// coherence reporting is not needed.
func NewValidator(bus EventBusIntrospector) *Validator {
	return &Validator{modules: make(map[string]registeredModule), bus: bus}
}

// RegisterModule adds a module to the aggregation set. critical marks
// whether an unreachable result for this module escalates the overall
// status to critical.
func (v *Validator) RegisterModule(name string, critical bool, checker ModuleChecker) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.modules[name]; !exists {
		v.order = append(v.order, name)
	}
	v.modules[name] = registeredModule{critical: critical, checker: checker}
}

// AggregateReport is the outcome of per-module health aggregation.
type AggregateReport struct {
	ModuleStatuses map[string]HealthStatus
	OverallStatus  HealthStatus
	EventBus       EventBusCoherence
}

// EventBusCoherence summarizes the event bus's observed activity.
type EventBusCoherence struct {
	TotalEvents         int
	ActiveSubscriptions int
}

// AggregateHealth runs every registered module's checker and composes the
// overall status: any unreachable critical module escalates the overall
// status to critical; otherwise the worst non-critical status wins.
func (v *Validator) AggregateHealth(ctx context.Context) AggregateReport {
	v.mu.RLock()
	order := append([]string(nil), v.order...)
	modules := make(map[string]registeredModule, len(v.modules))
	for k, m := range v.modules {
		modules[k] = m
	}
	bus := v.bus
	v.mu.RUnlock()

	statuses := make(map[string]HealthStatus, len(order))
	overall := HealthHealthy
	for _, name := range order {
		m := modules[name]
		status, err := m.checker.CheckHealth(ctx)
		if err != nil {
			status = HealthUnreachable
		}
		statuses[name] = status

		if status == HealthUnreachable && m.critical {
			overall = HealthCritical
			continue
		}
		if overall != HealthCritical {
			overall = worseStatus(overall, status)
		}
	}

	report := AggregateReport{ModuleStatuses: statuses, OverallStatus: overall}
	if bus != nil {
		report.EventBus = EventBusCoherence{
			TotalEvents:         bus.TotalEvents(),
			ActiveSubscriptions: bus.ActiveSubscriptions(),
		}
	}
	return report
}

func worseStatus(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{
		HealthHealthy:     0,
		HealthDegraded:    1,
		HealthUnreachable: 2,
		HealthCritical:    3,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// DataFlowHop is one hop of the cross-layer canonical chain check.
type DataFlowHop struct {
	Name    string
	Healthy bool
	Detail  string
}

// DataFlowReport is the outcome of running the canonical chain across
// modules and checking each hop.
type DataFlowReport struct {
	Hops    []DataFlowHop
	Healthy bool
}

// CheckDataFlow runs every hop function in order, recording whether each
// succeeded; the overall report is healthy only if every hop is.
func CheckDataFlow(ctx context.Context, hops map[string]func(ctx context.Context) error, order []string) DataFlowReport {
	report := DataFlowReport{Healthy: true}
	for _, name := range order {
		hop, ok := hops[name]
		if !ok {
			continue
		}
		err := hop(ctx)
		healthy := err == nil
		detail := "ok"
		if err != nil {
			detail = err.Error()
			report.Healthy = false
		}
		report.Hops = append(report.Hops, DataFlowHop{Name: name, Healthy: healthy, Detail: detail})
	}
	return report
}

// QflowCoherence reports on the four Qflow dimensions spec §4.6 names:
// distributed execution, node coordination, workflow integrity, and
// serverless liveness. Each is derived from the relevant subsystem's own
// health signal rather than re-implemented here.
type QflowCoherence struct {
	DistributedExecutionOK bool
	NodeCoordinationOK     bool
	WorkflowIntegrityOK    bool
	ServerlessLivenessOK   bool
}

// Coherent reports whether every Qflow dimension is healthy.
func (q QflowCoherence) Coherent() bool {
	return q.DistributedExecutionOK && q.NodeCoordinationOK && q.WorkflowIntegrityOK && q.ServerlessLivenessOK
}
