package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"qinfinity/clockid"
	"qinfinity/errs"
	"qinfinity/ports"
)

// ErrInsufficientFunds-shaped failures are reported via errs.KindAuthorizationDenied
// so callers can distinguish "can't pay" from a system error.

// lockManager grants one mutex per wallet identity, grounded on the
// teacher's native/fees sync.Map-guarded counters generalized from a
// single shared counter map into per-identity locks: unrelated wallets
// never contend, and settlements touching multiple wallets acquire them in
// a fixed order to prevent deadlock.
type lockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockManager() *lockManager {
	return &lockManager{locks: make(map[string]*sync.Mutex)}
}

func (l *lockManager) lockFor(identity string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[identity]
	if !ok {
		m = &sync.Mutex{}
		l.locks[identity] = m
	}
	return m
}

// withIdentities acquires exclusive locks for every supplied identity in
// deterministic (identity-sorted) order, runs fn, then releases them in
// reverse order.
func (l *lockManager) withIdentities(identities []string, fn func() error) error {
	unique := make(map[string]struct{}, len(identities))
	sorted := make([]string, 0, len(identities))
	for _, id := range identities {
		if _, seen := unique[id]; seen {
			continue
		}
		unique[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	mutexes := make([]*sync.Mutex, len(sorted))
	for i, id := range sorted {
		mutexes[i] = l.lockFor(id)
	}
	for _, m := range mutexes {
		m.Lock()
	}
	defer func() {
		for i := len(mutexes) - 1; i >= 0; i-- {
			mutexes[i].Unlock()
		}
	}()
	return fn()
}

// Engine coordinates intent creation, settlement, and revenue distribution
// against a wallet capability and an event bus.
type Engine struct {
	wallet ports.WalletPort
	bus    ports.EventBusPort
	ids    clockid.IdService
	clock  clockid.Clock
	locks  *lockManager

	mu      sync.Mutex
	intents map[string]*Intent
	splits  map[Module]SplitTable
}

// NewEngine constructs a payment Engine with the per-module revenue split
// tables it will apply on settlement.
func NewEngine(wallet ports.WalletPort, bus ports.EventBusPort, ids clockid.IdService, clock clockid.Clock, splits map[Module]SplitTable) *Engine {
	return &Engine{
		wallet:  wallet,
		bus:     bus,
		ids:     ids,
		clock:   clock,
		locks:   newLockManager(),
		intents: make(map[string]*Intent),
		splits:  splits,
	}
}

// CreateIntent validates and records a new PENDING intent, emitting
// `intent.created`.
func (e *Engine) CreateIntent(ctx context.Context, payer string, amount ports.Amount, currency string, module Module, purpose string, metadata map[string]string) (Intent, error) {
	intent, err := NewIntent(e.ids, payer, amount, currency, module, purpose, metadata, e.clock.Now())
	if err != nil {
		return Intent{}, err
	}

	e.mu.Lock()
	e.intents[intent.IntentID] = &intent
	e.mu.Unlock()

	e.publish(ctx, "intent.created", payer, map[string]any{"intent_id": intent.IntentID, "amount": amount.String(), "module": string(module)})
	return intent, nil
}

// Settle runs the sandbox-verifiable settlement path: look up the payer's
// balance, fail with an authorization-denied error if insufficient, debit
// atomically, transition the intent to SETTLED, emit `payment.settled`, and
// trigger revenue distribution.
func (e *Engine) Settle(ctx context.Context, intentID string) (Intent, RevenueDistribution, error) {
	correlationID := e.ids.NewID()

	e.mu.Lock()
	intent, ok := e.intents[intentID]
	e.mu.Unlock()
	if !ok {
		return Intent{}, RevenueDistribution{}, errs.New(errs.KindNotFound, correlationID, "payment: intent %q not found", intentID)
	}

	split, hasSplit := e.splits[intent.Module]
	recipients := []string{intent.Payer}
	if hasSplit {
		recipients = append(recipients, split.recipientIdentities(intent.Metadata)...)
	}

	var transactionID string
	var settledAt time.Time
	var distribution RevenueDistribution
	err := e.locks.withIdentities(recipients, func() error {
		if !e.clock.Now().Before(intent.ExpiresAt) {
			if transErr := intent.transition(IntentExpired, correlationID); transErr != nil {
				return transErr
			}
			return errs.New(errs.KindTimeout, correlationID, "payment: intent %q expired before settlement", intentID)
		}

		balance, err := e.wallet.Balance(ctx, intent.Payer, intent.Currency)
		if err != nil {
			return errs.Wrap(errs.KindInternal, correlationID, err, "payment: read balance for %q", intent.Payer)
		}
		if balance.Cmp(intent.Amount) < 0 {
			return errs.New(errs.KindAuthorizationDenied, correlationID, "payment: insufficient funds for intent %q", intentID)
		}

		txID, err := e.wallet.Debit(ctx, intent.Payer, intent.Amount, intent.Currency)
		if err != nil {
			return errs.Wrap(errs.KindInternal, correlationID, err, "payment: debit %q", intent.Payer)
		}
		transactionID = txID
		settledAt = e.clock.Now()

		if err := intent.transition(IntentSettled, correlationID); err != nil {
			return err
		}
		intent.TransactionID = transactionID
		intent.SettledAt = settledAt

		if hasSplit {
			dist, err := distributeRevenue(ctx, e.wallet, e.ids, intent.IntentID, intent.Module, intent.Amount, intent.Currency, split, intent.Metadata, correlationID)
			if err != nil {
				return err
			}
			distribution = dist
		}
		return nil
	})
	if err != nil {
		return Intent{}, RevenueDistribution{}, err
	}

	e.publish(ctx, "payment.settled", intent.Payer, map[string]any{
		"intent_id":      intentID,
		"transaction_id": transactionID,
		"amount":         intent.Amount.String(),
	})
	return *intent, distribution, nil
}

// Expire transitions every PENDING intent whose expires-at has passed to
// EXPIRED, for the background expiry task (expire.go) to call periodically.
func (e *Engine) Expire(ctx context.Context, now time.Time) []Intent {
	correlationID := e.ids.NewID()
	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []Intent
	for _, intent := range e.intents {
		if intent.Status != IntentPending {
			continue
		}
		if now.Before(intent.ExpiresAt) {
			continue
		}
		if err := intent.transition(IntentExpired, correlationID); err != nil {
			continue
		}
		expired = append(expired, *intent)
		e.publish(ctx, "intent.expired", intent.Payer, map[string]any{"intent_id": intent.IntentID})
	}
	return expired
}

// Get returns a copy of the intent by id.
func (e *Engine) Get(intentID string) (Intent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	intent, ok := e.intents[intentID]
	if !ok {
		return Intent{}, false
	}
	return *intent, true
}

// All returns a copy of every known intent, for reconciliation.
func (e *Engine) All() []Intent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Intent, 0, len(e.intents))
	for _, intent := range e.intents {
		out = append(out, *intent)
	}
	return out
}

func (e *Engine) publish(ctx context.Context, topic, actorIdentity string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, topic, ports.Envelope{
		EventID:   e.ids.NewID(),
		Timestamp: e.clock.Now(),
		Actor:     ports.Actor{Identity: actorIdentity, Role: "payment"},
		Payload:   payload,
	})
}
