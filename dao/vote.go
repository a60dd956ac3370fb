package dao

import (
	"context"

	"qinfinity/errs"
	"qinfinity/ports"
)

// voteWeightNFTMultiplier is the per-NFT weight used when a DAO has no
// token requirement: 10 x held-NFT-count, letting NFT-gated communities
// weight membership without a fungible token.
const voteWeightNFTMultiplier = 10

// CastVoteInput captures one member's ballot before weighting and
// signature verification.
type CastVoteInput struct {
	ProposalID string
	Voter      string
	Option     string
	Payload    []byte // the exact bytes signature was produced over
	Signature  []byte
}

// CastVote verifies and records a vote, recomputing weights and evaluating
// auto-closure afterward. At most one verified vote per proposal/voter is
// ever recorded; a repeat vote replaces the member's prior ballot rather
// than stacking weight, mirroring one-member-one-ballot semantics.
func (r *Registry) CastVote(ctx context.Context, wallet ports.WalletPort, identity ports.IdentityPort, in CastVoteInput) (Vote, error) {
	r.mu.Lock()
	p, ok := r.proposals[in.ProposalID]
	r.mu.Unlock()
	if !ok {
		return Vote{}, errs.New(errs.KindNotFound, in.Voter, "proposal %s not found", in.ProposalID)
	}

	r.mu.Lock()
	daoID := p.DAOID
	d := r.daos[daoID]
	status := p.Status
	expiresAt := p.ExpiresAt
	r.mu.Unlock()
	if status != ProposalActive {
		return Vote{}, errs.New(errs.KindConflict, in.Voter, "proposal %s is closed", in.ProposalID)
	}
	if !r.clock.Now().Before(expiresAt) {
		return Vote{}, errs.New(errs.KindConflict, in.Voter, "proposal %s voting window has closed", in.ProposalID)
	}
	if !optionExists(p.Options, in.Option) {
		return Vote{}, errs.New(errs.KindValidation, in.Voter, "option %q is not on proposal %s", in.Option, in.ProposalID)
	}

	verified, err := identity.VerifySignature(ctx, in.Voter, in.Payload, in.Signature)
	if err != nil {
		return Vote{}, errs.Wrap(errs.KindInternal, in.Voter, err, "verifying vote signature")
	}
	if !verified {
		return Vote{}, errs.New(errs.KindAuthorizationDenied, in.Voter, "vote signature did not verify")
	}

	weight, err := computeWeight(ctx, wallet, d, in.Voter)
	if err != nil {
		return Vote{}, errs.Wrap(errs.KindInternal, in.Voter, err, "computing vote weight")
	}

	vote := Vote{
		ID:         r.ids.NewID(),
		ProposalID: in.ProposalID,
		Voter:      in.Voter,
		Option:     in.Option,
		Weight:     weight,
		Signature:  in.Signature,
		Timestamp:  r.clock.Now(),
		Verified:   true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok = r.proposals[in.ProposalID]
	if !ok || p.Status != ProposalActive {
		return Vote{}, errs.New(errs.KindConflict, in.Voter, "proposal %s is closed", in.ProposalID)
	}
	if !r.clock.Now().Before(p.ExpiresAt) {
		r.evaluateClosureLocked(p)
		return Vote{}, errs.New(errs.KindConflict, in.Voter, "proposal %s voting window has closed", in.ProposalID)
	}

	voterVotes := r.votes[in.ProposalID]
	if prior, voted := voterVotes[in.Voter]; voted {
		res := p.Results[prior.Option]
		res.Count--
		res.Weight -= prior.Weight
		p.VoteCount--
	}
	voterVotes[in.Voter] = &vote
	res := p.Results[in.Option]
	res.Count++
	res.Weight += weight
	p.VoteCount++

	r.appendAudit(AuditEventVoted, p.ID, in.Voter, in.Option)
	r.evaluateClosureLocked(p)

	return vote, nil
}

func optionExists(options []string, option string) bool {
	for _, o := range options {
		if o == option {
			return true
		}
	}
	return false
}

// computeWeight implements spec.md's weighted-voting rule: floor(token
// balance) when the DAO has a token requirement, else 10x held NFT count,
// else 1 (one member, one vote).
func computeWeight(ctx context.Context, wallet ports.WalletPort, d *DAO, voter string) (int64, error) {
	if d.TokenRequirement != nil {
		balance, err := wallet.Balance(ctx, voter, d.TokenRequirement.Currency)
		if err != nil {
			return 0, err
		}
		return balance.BigInt().Int64(), nil
	}
	nfts, err := wallet.ListNFTs(ctx, voter)
	if err != nil {
		return 0, err
	}
	if len(nfts) > 0 {
		return int64(len(nfts)) * voteWeightNFTMultiplier, nil
	}
	return 1, nil
}
