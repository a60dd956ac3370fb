package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ledgerMetrics tracks the deterministic replay ledger's append/replay
// activity.
type ledgerMetrics struct {
	appends    *prometheus.CounterVec
	replayDiff *prometheus.CounterVec
	chainDepth prometheus.Gauge
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics

	pipelineMetricsOnce sync.Once
	pipelineRegistry    *pipelineMetrics

	gossipMetricsOnce sync.Once
	gossipRegistry    *gossipMetrics

	stressMetricsOnce sync.Once
	stressRegistry    *stressMetrics

	consensusMetricsOnce sync.Once
	consensusRegistry    *consensusMetrics

	paymentMetricsOnce sync.Once
	paymentRegistry    *paymentMetrics

	daoMetricsOnce sync.Once
	daoRegistry    *daoMetrics
)

// Ledger returns the lazily-initialized ledger metrics registry.
func Ledger() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			appends: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "ledger",
				Name:      "appends_total",
				Help:      "Total executions appended to the replay ledger, segmented by outcome.",
			}, []string{"outcome"}),
			replayDiff: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "ledger",
				Name:      "replay_diffs_total",
				Help:      "Total replay runs segmented by whether they matched the recorded execution.",
			}, []string{"result"}),
			chainDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "qinfinity",
				Subsystem: "ledger",
				Name:      "chain_depth",
				Help:      "Current length of the hash-chained execution ledger.",
			}),
		}
		prometheus.MustRegister(ledgerRegistry.appends, ledgerRegistry.replayDiff, ledgerRegistry.chainDepth)
	})
	return ledgerRegistry
}

// RecordAppend increments the append counter for outcome ("ok" or
// "chain_break").
func (m *ledgerMetrics) RecordAppend(outcome string) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues(nonEmpty(outcome, "unknown")).Inc()
}

// RecordReplay increments the replay counter for result ("match" or
// "diverged").
func (m *ledgerMetrics) RecordReplay(result string) {
	if m == nil {
		return
	}
	m.replayDiff.WithLabelValues(nonEmpty(result, "unknown")).Inc()
}

// SetChainDepth updates the chain-depth gauge.
func (m *ledgerMetrics) SetChainDepth(depth int) {
	if m == nil {
		return
	}
	m.chainDepth.Set(float64(depth))
}

// pipelineMetrics tracks the encrypt/index/audit/store data-flow pipeline.
type pipelineMetrics struct {
	stepLatency *prometheus.HistogramVec
	stepErrors  *prometheus.CounterVec
	hopHealth   *prometheus.GaugeVec
}

// Pipeline returns the lazily-initialized pipeline metrics registry.
func Pipeline() *pipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineRegistry = &pipelineMetrics{
			stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "qinfinity",
				Subsystem: "pipeline",
				Name:      "step_duration_seconds",
				Help:      "Latency distribution for individual data-flow pipeline steps.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"step"}),
			stepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "pipeline",
				Name:      "step_errors_total",
				Help:      "Count of pipeline step failures segmented by step.",
			}, []string{"step"}),
			hopHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "qinfinity",
				Subsystem: "pipeline",
				Name:      "hop_healthy",
				Help:      "1 if the cross-layer data-flow hop is healthy, 0 otherwise.",
			}, []string{"hop"}),
		}
		prometheus.MustRegister(pipelineRegistry.stepLatency, pipelineRegistry.stepErrors, pipelineRegistry.hopHealth)
	})
	return pipelineRegistry
}

// ObserveStep records a pipeline step's latency and, on error, increments
// the step error counter.
func (m *pipelineMetrics) ObserveStep(step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	step = nonEmpty(step, "unknown")
	m.stepLatency.WithLabelValues(step).Observe(d.Seconds())
	if err != nil {
		m.stepErrors.WithLabelValues(step).Inc()
	}
}

// SetHopHealth records whether a named data-flow hop is currently healthy.
func (m *pipelineMetrics) SetHopHealth(hop string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.hopHealth.WithLabelValues(nonEmpty(hop, "unknown")).Set(v)
}

// gossipMetrics tracks the gossipsub fair-scheduling distributor.
type gossipMetrics struct {
	assignments  *prometheus.CounterVec
	backoffLevel *prometheus.GaugeVec
	queueDepth   prometheus.Gauge
}

// Gossip returns the lazily-initialized gossip metrics registry.
func Gossip() *gossipMetrics {
	gossipMetricsOnce.Do(func() {
		gossipRegistry = &gossipMetrics{
			assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "gossip",
				Name:      "assignments_total",
				Help:      "Total topic assignments segmented by outcome.",
			}, []string{"outcome"}),
			backoffLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "qinfinity",
				Subsystem: "gossip",
				Name:      "backoff_level",
				Help:      "Current reannounce backoff level per peer.",
			}, []string{"peer"}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "qinfinity",
				Subsystem: "gossip",
				Name:      "queue_depth",
				Help:      "Current depth of the fair-scheduling assignment queue.",
			}),
		}
		prometheus.MustRegister(gossipRegistry.assignments, gossipRegistry.backoffLevel, gossipRegistry.queueDepth)
	})
	return gossipRegistry
}

// RecordAssignment increments the assignment counter for outcome.
func (m *gossipMetrics) RecordAssignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(nonEmpty(outcome, "unknown")).Inc()
}

// SetBackoffLevel records a peer's current reannounce backoff level.
func (m *gossipMetrics) SetBackoffLevel(peer string, level int) {
	if m == nil {
		return
	}
	m.backoffLevel.WithLabelValues(nonEmpty(peer, "unknown")).Set(float64(level))
}

// SetQueueDepth updates the scheduling queue depth gauge.
func (m *gossipMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// stressMetrics tracks stress-test harness runs.
type stressMetrics struct {
	requests  *prometheus.CounterVec
	errorRate prometheus.Gauge
}

// Stress returns the lazily-initialized stress metrics registry.
func Stress() *stressMetrics {
	stressMetricsOnce.Do(func() {
		stressRegistry = &stressMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "stress",
				Name:      "requests_total",
				Help:      "Total synthetic load requests segmented by outcome.",
			}, []string{"outcome"}),
			errorRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "qinfinity",
				Subsystem: "stress",
				Name:      "error_rate",
				Help:      "Current observed error rate (0-1) of the running stress scenario.",
			}),
		}
		prometheus.MustRegister(stressRegistry.requests, stressRegistry.errorRate)
	})
	return stressRegistry
}

// RecordRequest increments the request counter for outcome.
func (m *stressMetrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(nonEmpty(outcome, "unknown")).Inc()
}

// SetErrorRate updates the current error-rate gauge.
func (m *stressMetrics) SetErrorRate(rate float64) {
	if m == nil {
		return
	}
	m.errorRate.Set(rate)
}

// consensusMetrics tracks the quorum coordinator.
type consensusMetrics struct {
	rounds     *prometheus.CounterVec
	confidence *prometheus.GaugeVec
	recoveries *prometheus.CounterVec
}

// Consensus returns the lazily-initialized consensus metrics registry.
func Consensus() *consensusMetrics {
	consensusMetricsOnce.Do(func() {
		consensusRegistry = &consensusMetrics{
			rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "consensus",
				Name:      "rounds_total",
				Help:      "Total quorum rounds segmented by operation type and outcome.",
			}, []string{"operation_type", "outcome"}),
			confidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "qinfinity",
				Subsystem: "consensus",
				Name:      "last_confidence",
				Help:      "Confidence score of the most recently completed round, per operation type.",
			}, []string{"operation_type"}),
			recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "consensus",
				Name:      "recovery_attempts_total",
				Help:      "Total recovery-ladder attempts segmented by action.",
			}, []string{"action"}),
		}
		prometheus.MustRegister(consensusRegistry.rounds, consensusRegistry.confidence, consensusRegistry.recoveries)
	})
	return consensusRegistry
}

// RecordRound increments the round counter for an operation type/outcome and
// records its confidence.
func (m *consensusMetrics) RecordRound(opType, outcome string, confidence float64) {
	if m == nil {
		return
	}
	opType = nonEmpty(opType, "unknown")
	m.rounds.WithLabelValues(opType, nonEmpty(outcome, "unknown")).Inc()
	m.confidence.WithLabelValues(opType).Set(confidence)
}

// RecordRecoveryAttempt increments the recovery counter for action.
func (m *consensusMetrics) RecordRecoveryAttempt(action string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(nonEmpty(action, "unknown")).Inc()
}

// paymentMetrics tracks the payment engine.
type paymentMetrics struct {
	intents     *prometheus.CounterVec
	settleLat   prometheus.Histogram
	reconcileOK prometheus.Gauge
}

// Payment returns the lazily-initialized payment metrics registry.
func Payment() *paymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentRegistry = &paymentMetrics{
			intents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "payment",
				Name:      "intents_total",
				Help:      "Total payment intents segmented by terminal status.",
			}, []string{"status"}),
			settleLat: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "qinfinity",
				Subsystem: "payment",
				Name:      "settlement_duration_seconds",
				Help:      "Latency distribution for settlement of a payment intent.",
				Buckets:   prometheus.DefBuckets,
			}),
			reconcileOK: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "qinfinity",
				Subsystem: "payment",
				Name:      "reconciliation_balanced",
				Help:      "1 if the most recent reconciliation balanced, 0 otherwise.",
			}),
		}
		prometheus.MustRegister(paymentRegistry.intents, paymentRegistry.settleLat, paymentRegistry.reconcileOK)
	})
	return paymentRegistry
}

// RecordIntent increments the intent counter for a terminal status.
func (m *paymentMetrics) RecordIntent(status string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(nonEmpty(status, "unknown")).Inc()
}

// ObserveSettlement records settlement latency.
func (m *paymentMetrics) ObserveSettlement(d time.Duration) {
	if m == nil {
		return
	}
	m.settleLat.Observe(d.Seconds())
}

// SetReconciliationBalanced records whether the last reconciliation balanced.
func (m *paymentMetrics) SetReconciliationBalanced(balanced bool) {
	if m == nil {
		return
	}
	if balanced {
		m.reconcileOK.Set(1)
		return
	}
	m.reconcileOK.Set(0)
}

// daoMetrics tracks the DAO service.
type daoMetrics struct {
	proposals *prometheus.CounterVec
	votes     *prometheus.CounterVec
}

// DAO returns the lazily-initialized DAO metrics registry.
func DAO() *daoMetrics {
	daoMetricsOnce.Do(func() {
		daoRegistry = &daoMetrics{
			proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "dao",
				Name:      "proposals_total",
				Help:      "Total proposals segmented by closure reason.",
			}, []string{"closure_reason"}),
			votes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qinfinity",
				Subsystem: "dao",
				Name:      "votes_total",
				Help:      "Total verified votes cast.",
			}, []string{"dao_id"}),
		}
		prometheus.MustRegister(daoRegistry.proposals, daoRegistry.votes)
	})
	return daoRegistry
}

// RecordProposalClosed increments the proposal counter for a closure reason.
func (m *daoMetrics) RecordProposalClosed(reason string) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues(nonEmpty(reason, "unknown")).Inc()
}

// RecordVote increments the vote counter for a DAO.
func (m *daoMetrics) RecordVote(daoID string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(nonEmpty(daoID, "unknown")).Inc()
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
