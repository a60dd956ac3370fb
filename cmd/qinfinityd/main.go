// Command qinfinityd is the reproducible demo orchestrator: it wires every
// control-plane package against an in-memory capability-port sandbox and a
// simulated remote node fleet, then drives one pass through each module's
// core operation, printing a summary report. Grounded on the teacher's
// cmd/consensusd (flag-driven config path, structured logging, signal-
// driven graceful shutdown of background workers) but replacing the real
// gRPC/network bring-up with sandbox port wiring, since this binary's job
// is to demonstrate the control plane end-to-end, not to serve traffic.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"qinfinity/clockid"
	"qinfinity/config"
	"qinfinity/crypto"
	"qinfinity/dao"
	"qinfinity/gossip"
	"qinfinity/integrity"
	"qinfinity/ledger"
	"qinfinity/observability"
	"qinfinity/observability/logging"
	"qinfinity/observability/otel"
	"qinfinity/payment"
	"qinfinity/pipeline"
	"qinfinity/ports"
	"qinfinity/ports/sandbox"
	"qinfinity/quorum"
	"qinfinity/replay"
	"qinfinity/storage"
	"qinfinity/stress"
)

// nodeKeystorePassEnv names the environment variable consumed to decrypt
// the node's keystore file, mirroring the teacher's validator-keystore
// passphrase convention.
const nodeKeystorePassEnv = "QINFINITYD_NODE_PASS"

// persistNodeKey decodes cfg.NodeKey, writes it to an encrypted keystore
// file under cfg.DataDir, then reloads it to confirm the round trip -
// this is the same load-or-generate-then-persist discipline config.Load
// applies to the raw key material, extended to the keystore file itself.
func persistNodeKey(cfg *config.Config) (*crypto.PrivateKey, string, error) {
	raw, err := hex.DecodeString(cfg.NodeKey)
	if err != nil {
		return nil, "", fmt.Errorf("decode node key: %w", err)
	}
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse node key: %w", err)
	}

	passphrase := os.Getenv(nodeKeystorePassEnv)
	if passphrase == "" {
		if !cfg.SandboxMode {
			return nil, "", fmt.Errorf("%s must be set outside sandbox mode", nodeKeystorePassEnv)
		}
		passphrase = "qinfinityd-sandbox-demo"
	}

	keystorePath := filepath.Join(cfg.DataDir, "keystore", "node.key")
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, "", fmt.Errorf("save node keystore: %w", err)
	}
	reloaded, err := crypto.LoadFromKeystore(keystorePath, passphrase)
	if err != nil {
		return nil, "", fmt.Errorf("reload node keystore: %w", err)
	}
	return reloaded, keystorePath, nil
}

func main() {
	configFile := flag.String("config", "./qinfinityd.toml", "Path to the configuration file")
	nodeFleetSize := flag.Int("fleet-size", 5, "Number of simulated remote consensus nodes")
	stressEvents := flag.Int("stress-events", 200, "Number of events the stress harness simulates")
	otelEndpoint := flag.String("otel-endpoint", "", "OTLP HTTP collector endpoint; empty disables export")
	flag.Parse()

	logger := logging.Setup("qinfinityd", "demo")

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Traces/Metrics stay false unless an endpoint is supplied: Init still
	// runs (exercising resource/propagator setup) but builds no exporters,
	// so the demo never blocks on an unreachable collector.
	otelShutdown, err := otel.Init(ctx, otel.Config{
		ServiceName: "qinfinityd",
		Environment: "demo",
		Endpoint:    *otelEndpoint,
		Insecure:    true,
		Metrics:     *otelEndpoint != "",
		Traces:      *otelEndpoint != "",
	})
	if err != nil {
		logger.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	if err := run(ctx, logger, cfg, *nodeFleetSize, *stressEvents); err != nil {
		logger.Error("demo run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, fleetSize, stressEvents int) error {
	ids := clockid.UUIDService{}
	clock := clockid.SystemClock{}
	rng := clockid.NewSeeded(7, 13)

	cryptoPort := sandbox.NewCryptoPort()
	db := storage.NewMemDB()
	defer db.Close()
	storagePort := sandbox.NewContentStoragePort(db, clock)
	identityPort := sandbox.NewIdentityPort(cryptoPort, cfg.SandboxMode)
	walletPort := sandbox.NewWalletPort(ids)
	auditPort := sandbox.NewAuditPort(clock)
	indexPort := sandbox.NewIndexPort()
	busPort := sandbox.NewEventBusPort()

	logger.Info("sandbox ports wired", "sandbox_mode", cfg.SandboxMode)

	nodeKey, keystorePath, err := persistNodeKey(cfg)
	if err != nil {
		return fmt.Errorf("node keystore: %w", err)
	}
	logger.Info("node signing key persisted to keystore",
		"path", keystorePath,
		"node_address", nodeKey.PubKey().Address(crypto.NodePrefix).String())

	// --- Ledger + pipeline -------------------------------------------------
	publisher := ledger.NewPublisher(storagePort, 3, 10*time.Millisecond)
	ledgerEngine, err := ledger.NewEngine(db, clock, ids, "qinfinityd-node", 24*time.Hour, publisher)
	if err != nil {
		return fmt.Errorf("ledger engine: %w", err)
	}
	executor := pipeline.NewExecutor(cryptoPort, ledgerEngine, ids)

	pipelinePorts := pipeline.Ports{
		Crypto:    cryptoPort,
		Storage:   storagePort,
		Index:     indexPort,
		Audit:     auditPort,
		Actor:     "demo-operator",
		Namespace: "demo",
	}
	executionID := ids.NewID()
	forwardResult, err := executor.Run(ctx, executionID, pipeline.ForwardSteps(pipelinePorts), pipeline.StepInput{
		Data: []byte("reproducible demo payload"),
	})
	if err != nil {
		return fmt.Errorf("pipeline forward run: %w", err)
	}
	logger.Info("pipeline forward run complete",
		"execution_id", executionID,
		"integrity_violated", forwardResult.IntegrityViolated,
		"duration", forwardResult.TotalDuration)

	recordingStore := replay.NewRecordingStore()
	runner := replay.NewRunner(executor, recordingStore, replay.DefaultTolerances())
	if _, err := runner.RunAndRecord(ctx, executionID, pipeline.ForwardSteps(pipelinePorts), pipeline.StepInput{
		Data: []byte("reproducible demo payload"),
	}); err != nil {
		return fmt.Errorf("replay record: %w", err)
	}
	verdict, err := runner.Replay(ctx, executionID, pipeline.ForwardSteps(pipelinePorts))
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	logger.Info("replay verdict", "severity", verdict.Severity)

	// --- Gossipsub fair scheduling ------------------------------------------
	distributor := gossip.NewDistributor(rng, 5*time.Millisecond)
	distributor.SetMaxBackoff(cfg.Gossip.MaxBackoffLevel)
	var jobs []gossip.Job
	for i := 0; i < fleetSize; i++ {
		nodeID := fmt.Sprintf("node-%d", i)
		distributor.RegisterNode(nodeID)
	}
	for i := 0; i < fleetSize*4; i++ {
		jobs = append(jobs, gossip.Job{ID: fmt.Sprintf("job-%d", i)})
	}
	gossipReport := distributor.Dispatch(ctx, jobs, time.Millisecond)
	logger.Info("gossip dispatch complete", "lost_jobs", gossipReport.LostJobs, "total_jobs", gossipReport.TotalJobs)

	// --- Consensus quorum over the simulated remote node fleet --------------
	coordinator := quorum.NewCoordinator(ids, clock, cfg.Consensus.BaseBackoff)
	participants := make([]string, fleetSize)
	for i := range participants {
		participants[i] = fmt.Sprintf("node-%d", i)
	}
	round, err := coordinator.Coordinate(ctx, quorum.Params{
		ExecutionID:   executionID,
		StepID:        "demo-attestation",
		OperationType: quorum.OperationGovernance,
		Participants:  participants,
		CandidatePool: participants,
		Deadline:      time.Second,
		RequestVote: func(ctx context.Context, nodeID string) (quorum.Vote, error) {
			return quorum.Vote{NodeID: nodeID, Decision: quorum.DecisionApprove, Confidence: 0.9}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("quorum coordinate: %w", err)
	}
	logger.Info("quorum round complete", "reached", round.Reached, "confidence", round.Confidence)

	// --- Payment engine ------------------------------------------------------
	splits := map[payment.Module]payment.SplitTable{
		payment.ModuleMarket: {
			Entries: []payment.SplitEntry{
				{Label: "platform", FractionBps: 1_000, FixedIdentity: "platform-treasury"},
				{Label: "seller", FractionBps: 9_000, MetadataKey: "seller_identity"},
			},
		},
	}
	paymentEngine := payment.NewEngine(walletPort, busPort, ids, clock, splits)
	expiryTask := payment.NewExpiryTask(paymentEngine, clock, cfg.Timers.PaymentExpirySweep)
	expiryTask.Start(ctx)
	defer expiryTask.Stop()

	walletPort.Seed("demo-buyer", ports.NewAmount(10_000), "USD")
	intent, err := paymentEngine.CreateIntent(ctx, "demo-buyer", ports.NewAmount(500), "USD", payment.ModuleMarket, "demo-purchase", map[string]string{
		"seller_identity": "demo-seller",
	})
	if err != nil {
		return fmt.Errorf("create payment intent: %w", err)
	}
	_, distribution, err := paymentEngine.Settle(ctx, intent.IntentID)
	if err != nil {
		return fmt.Errorf("settle payment intent: %w", err)
	}
	logger.Info("payment settled", "intent_id", intent.IntentID, "distribution_total", distribution.Total.String())

	// --- DAO governance --------------------------------------------------
	daoRegistry := dao.NewRegistry(ids, clock)
	registeredDAO, err := daoRegistry.RegisterDAO(dao.DAO{
		Visibility:     dao.VisibilityPublic,
		Quorum:         2,
		VotingDuration: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("register dao: %w", err)
	}
	proposal, err := daoRegistry.CreateProposal(ctx, walletPort, dao.CreateProposalInput{
		DAOID:   registeredDAO.ID,
		Title:   "adopt quarterly roadmap",
		Creator: "demo-seller",
		Options: []string{"approve", "reject"},
	})
	if err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	for _, voter := range []string{"voter-a", "voter-b"} {
		if _, err := daoRegistry.CastVote(ctx, walletPort, identityPort, dao.CastVoteInput{
			ProposalID: proposal.ID,
			Voter:      voter,
			Option:     "approve",
			Payload:    []byte("ballot"),
			Signature:  []byte("mock_signature_" + voter),
		}); err != nil {
			return fmt.Errorf("cast vote from %s: %w", voter, err)
		}
	}
	closedProposal, _ := daoRegistry.GetProposal(proposal.ID)
	logger.Info("dao proposal closed", "proposal_id", proposal.ID, "status", closedProposal.Status)

	// --- Stress harness -------------------------------------------------
	harness := stress.NewHarness(rng)
	stressReport, err := harness.Run(ctx, stress.Config{
		EventCount:   stressEvents,
		Parallelism:  8,
		FailureRate:  0.01,
		MaxErrorRate: cfg.Stress.MaxErrorRate,
		MinWork:      time.Millisecond,
		MaxWork:      5 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("stress run: %w", err)
	}
	logger.Info("stress run complete", "passed", stressReport.Passed, "p99", stressReport.P99)

	// --- Integrity & consensus engine -------------------------------------
	validator := integrity.NewValidator(busPort)
	validator.RegisterModule("ledger", true, integrity.ModuleCheckerFunc(func(ctx context.Context) (integrity.HealthStatus, error) {
		return integrity.HealthHealthy, nil
	}))
	validator.RegisterModule("gossip", false, integrity.ModuleCheckerFunc(func(ctx context.Context) (integrity.HealthStatus, error) {
		if gossipReport.LostJobs > 0 {
			return integrity.HealthDegraded, nil
		}
		return integrity.HealthHealthy, nil
	}))
	aggregate := validator.AggregateHealth(ctx)
	logger.Info("integrity aggregate health", "status", aggregate.OverallStatus)

	attestation, err := integrity.ComposeAttestation(ctx, ids, clock, cryptoPort, storagePort,
		integrity.DecentralizationInputs{
			UsesCentralDatabase: false,
			UsesMessageBroker:   false,
			ContentStorageWired: true,
			ActiveGossipNodes:   fleetSize,
		},
		integrity.ContinuityObservation{
			ServiceAvailability:       0.95,
			DataIntegrityOK:           true,
			PeerConnectivityOK:        true,
			ConsensusQuorumAchievable: round.Reached,
		},
		2*time.Second, 3*time.Second)
	if err != nil {
		return fmt.Errorf("compose attestation: %w", err)
	}
	logger.Info("decentralization attestation", "status", attestation.OverallStatus, "content_address", attestation.ContentAddress)

	gateReport := integrity.EvaluateGates(integrity.GateObservation{
		P95:           120 * time.Millisecond,
		P99:           stressReport.P99,
		ErrorBurnRate: stressReport.ErrorRate,
		CacheHitRate:  0.9,
	}, integrity.DefaultGateThresholds())
	logger.Info("performance gate report", "status", gateReport.Status, "failures", len(gateReport.Failures))

	// --- Observability core -----------------------------------------------
	recorder := observability.NewRecorder()
	recorder.Record(forwardResult.TotalDuration, 200, "/pipeline/run", "POST")
	sloEvaluator := observability.NewSLOEvaluator(recorder, busPort, ids, clock, observability.DefaultTargets())
	if _, err := sloEvaluator.Evaluate(ctx, "/pipeline/run", "POST"); err != nil {
		logger.Warn("slo evaluation publish failed", "error", err)
	}

	anomalyDetector := observability.NewAnomalyDetector()
	for i := 0; i < 12; i++ {
		anomalyDetector.Observe("pipeline_latency_ms", float64(forwardResult.TotalDuration.Milliseconds()))
	}

	poller := observability.NewDependencyPoller(cfg.Timers.DependencyPollInterval)
	poller.Register("wallet", func(ctx context.Context) error {
		_, err := walletPort.Balance(ctx, "demo-buyer", "USD")
		return err
	}, 2*time.Second)
	poller.Start(ctx)
	defer poller.Stop()

	logger.Info("qinfinityd demo pass complete")
	return nil
}
