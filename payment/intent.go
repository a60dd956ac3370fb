package payment

import (
	"time"

	"qinfinity/clockid"
	"qinfinity/errs"
	"qinfinity/ports"
)

// IntentStatus is the closed set a PaymentIntent transitions through,
// grounded on the teacher's native/governance ProposalStatus: a single
// closed enum plus one transition function rather than ad-hoc strings
// (design note "Sum types over ad-hoc strings").
type IntentStatus string

const (
	IntentPending IntentStatus = "PENDING"
	IntentSettled IntentStatus = "SETTLED"
	IntentExpired IntentStatus = "EXPIRED"
	IntentFailed  IntentStatus = "FAILED"
)

// defaultExpiry is the PENDING -> EXPIRED window spec §4.8 mandates.
const defaultExpiry = time.Hour

// Intent is one PaymentIntent.
type Intent struct {
	IntentID      string
	Payer         string
	Amount        ports.Amount
	Currency      string
	Module        Module
	Purpose       string
	Metadata      map[string]string
	Status        IntentStatus
	CreatedAt     time.Time
	ExpiresAt     time.Time
	TransactionID string
	SettledAt     time.Time
}

// NewIntent constructs a PENDING intent with expiry createdAt+1h, validating
// the invariants spec §3 names: amount must be valid (non-negative) and
// payer must be non-empty.
func NewIntent(ids clockid.IdService, payer string, amount ports.Amount, currency string, module Module, purpose string, metadata map[string]string, createdAt time.Time) (Intent, error) {
	correlationID := ids.NewID()
	if payer == "" {
		return Intent{}, errs.New(errs.KindValidation, correlationID, "payment: payer is required")
	}
	if !amount.IsValid() {
		return Intent{}, errs.New(errs.KindValidation, correlationID, "payment: amount must be non-negative")
	}
	clonedMetadata := make(map[string]string, len(metadata))
	for k, v := range metadata {
		clonedMetadata[k] = v
	}
	return Intent{
		IntentID:  correlationID,
		Payer:     payer,
		Amount:    amount,
		Currency:  currency,
		Module:    module,
		Purpose:   purpose,
		Metadata:  clonedMetadata,
		Status:    IntentPending,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(defaultExpiry),
	}, nil
}

// IsTerminal reports whether status can no longer transition.
func (s IntentStatus) IsTerminal() bool {
	return s == IntentSettled || s == IntentExpired || s == IntentFailed
}

// transition is the single state-machine step every mutation funnels
// through: PENDING -> {SETTLED | EXPIRED | FAILED}, terminal states are
// immutable.
func (in *Intent) transition(to IntentStatus, correlationID string) error {
	if in.Status.IsTerminal() {
		return errs.New(errs.KindConflict, correlationID, "payment: intent %q is already terminal (%s)", in.IntentID, in.Status)
	}
	if in.Status != IntentPending {
		return errs.New(errs.KindConflict, correlationID, "payment: intent %q cannot transition from %s", in.IntentID, in.Status)
	}
	in.Status = to
	return nil
}
