package dao

import (
	"context"
	"time"

	"qinfinity/errs"
	"qinfinity/ports"
)

// CreateProposalInput captures the caller-supplied fields for a new
// proposal. Options must contain at least two unique entries; order is
// preserved as the stable tally order.
type CreateProposalInput struct {
	DAOID       string
	Title       string
	Description string
	Options     []string
	Creator     string
	// VotingDuration overrides the DAO's default when positive.
	VotingDuration time.Duration
}

// CreateProposal opens a new active proposal under dao, gated by the DAO's
// token requirement (if any) and spec.md's option-shape invariants.
func (r *Registry) CreateProposal(ctx context.Context, wallet ports.WalletPort, in CreateProposalInput) (Proposal, error) {
	r.mu.Lock()
	d, ok := r.daos[in.DAOID]
	r.mu.Unlock()
	if !ok {
		return Proposal{}, errs.New(errs.KindNotFound, in.Creator, "dao %s not found", in.DAOID)
	}
	if !d.IsActive {
		return Proposal{}, errs.New(errs.KindConflict, in.Creator, "dao %s is not active", in.DAOID)
	}
	if in.Creator == "" {
		return Proposal{}, errs.New(errs.KindValidation, in.Creator, "proposal creator is required")
	}
	if err := validateOptions(in.Options); err != nil {
		return Proposal{}, err
	}

	if d.TokenRequirement != nil {
		balance, err := wallet.Balance(ctx, in.Creator, d.TokenRequirement.Currency)
		if err != nil {
			return Proposal{}, errs.Wrap(errs.KindInternal, in.Creator, err, "checking creator token balance")
		}
		if balance.BigInt().Int64() < d.TokenRequirement.MinAmount {
			return Proposal{}, errs.New(errs.KindAuthorizationDenied, in.Creator,
				"creator holds %s, below the %d %s required to propose", balance.String(), d.TokenRequirement.MinAmount, d.TokenRequirement.Currency)
		}
	}

	duration := in.VotingDuration
	if duration <= 0 {
		duration = d.VotingDuration
	}
	now := r.clock.Now()

	results := make(map[string]*OptionResult, len(in.Options))
	for _, opt := range in.Options {
		results[opt] = &OptionResult{}
	}

	p := &Proposal{
		ID:          r.ids.NewID(),
		DAOID:       in.DAOID,
		Title:       in.Title,
		Description: in.Description,
		Options:     append([]string(nil), in.Options...),
		Creator:     in.Creator,
		CreatedAt:   now,
		ExpiresAt:   now.Add(duration),
		Status:      ProposalActive,
		Quorum:      d.Quorum,
		Results:     results,
	}

	r.mu.Lock()
	r.proposals[p.ID] = p
	r.votes[p.ID] = make(map[string]*Vote)
	r.appendAudit(AuditEventProposed, p.ID, in.Creator, in.Title)
	r.mu.Unlock()

	return *p, nil
}

func validateOptions(options []string) error {
	if len(options) < 2 {
		return errs.New(errs.KindValidation, "", "a proposal needs at least two options, got %d", len(options))
	}
	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		if opt == "" {
			return errs.New(errs.KindValidation, "", "proposal options must not be empty")
		}
		if _, dup := seen[opt]; dup {
			return errs.New(errs.KindValidation, "", "duplicate proposal option %q", opt)
		}
		seen[opt] = struct{}{}
	}
	return nil
}
