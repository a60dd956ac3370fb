package dao

import (
	"context"
	"testing"
	"time"

	"qinfinity/clockid"
	"qinfinity/ports"
	"qinfinity/ports/sandbox"
)

func newTestRegistry(t *testing.T) (*Registry, *clockid.FixedClock, *sandbox.WalletPort, *sandbox.IdentityPort) {
	t.Helper()
	ids := clockid.NewSequentialIDService("dao")
	clock := clockid.NewFixedClock(time.Unix(0, 0))
	wallet := sandbox.NewWalletPort(ids)
	identity := sandbox.NewIdentityPort(nil, true)
	return NewRegistry(ids, clock), clock, wallet, identity
}

func mockSig(voter string) []byte {
	return []byte("mock_signature_" + voter)
}

func TestRegisterDAORejectsInvalidQuorum(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	_, err := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 0, VotingDuration: time.Hour})
	if err == nil {
		t.Fatalf("expected error for zero quorum")
	}
}

func TestCreateProposalRequiresTwoUniqueOptions(t *testing.T) {
	r, _, wallet, _ := newTestRegistry(t)
	d, err := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 2, VotingDuration: time.Hour})
	if err != nil {
		t.Fatalf("register dao: %v", err)
	}
	ctx := context.Background()

	if _, err := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes"}}); err == nil {
		t.Fatalf("expected error for single option")
	}
	if _, err := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "yes"}}); err == nil {
		t.Fatalf("expected error for duplicate option")
	}
}

func TestCreateProposalEnforcesTokenRequirement(t *testing.T) {
	r, _, wallet, _ := newTestRegistry(t)
	d, err := r.RegisterDAO(DAO{
		Visibility:       VisibilityPublic,
		Quorum:           2,
		VotingDuration:   time.Hour,
		TokenRequirement: &TokenRequirement{Currency: "GOV", MinAmount: 100},
	})
	if err != nil {
		t.Fatalf("register dao: %v", err)
	}
	ctx := context.Background()

	if _, err := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "poor-alice", Options: []string{"yes", "no"}}); err == nil {
		t.Fatalf("expected authorization error for insufficient token balance")
	}

	wallet.Seed("rich-bob", ports.NewAmount(500), "GOV")
	p, err := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "rich-bob", Options: []string{"yes", "no"}})
	if err != nil {
		t.Fatalf("expected proposal to succeed, got %v", err)
	}
	if p.Status != ProposalActive {
		t.Fatalf("expected active status, got %s", p.Status)
	}
}

func TestCastVoteWeightsByTokenBalance(t *testing.T) {
	r, _, wallet, identity := newTestRegistry(t)
	d, _ := r.RegisterDAO(DAO{
		Visibility:       VisibilityPublic,
		Quorum:           5,
		VotingDuration:   time.Hour,
		TokenRequirement: &TokenRequirement{Currency: "GOV", MinAmount: 0},
	})
	ctx := context.Background()
	p, err := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "no"}})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	wallet.Seed("alice", ports.NewAmount(42), "GOV")
	vote, err := r.CastVote(ctx, wallet, identity, CastVoteInput{
		ProposalID: p.ID,
		Voter:      "alice",
		Option:     "yes",
		Payload:    []byte("ballot"),
		Signature:  mockSig("alice"),
	})
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if vote.Weight != 42 {
		t.Fatalf("expected weight 42 from token balance, got %d", vote.Weight)
	}
}

func TestCastVoteWeightsByNFTCountWithoutTokenRequirement(t *testing.T) {
	r, _, wallet, identity := newTestRegistry(t)
	d, _ := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 5, VotingDuration: time.Hour})
	ctx := context.Background()
	p, _ := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "no"}})

	wallet.SeedNFT("bob", "nft-1")
	wallet.SeedNFT("bob", "nft-2")
	vote, err := r.CastVote(ctx, wallet, identity, CastVoteInput{
		ProposalID: p.ID,
		Voter:      "bob",
		Option:     "no",
		Payload:    []byte("ballot"),
		Signature:  mockSig("bob"),
	})
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if vote.Weight != 20 {
		t.Fatalf("expected weight 20 (2 nfts x 10), got %d", vote.Weight)
	}
}

func TestCastVoteFallsBackToOneMemberOneVote(t *testing.T) {
	r, _, wallet, identity := newTestRegistry(t)
	d, _ := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 5, VotingDuration: time.Hour})
	ctx := context.Background()
	p, _ := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "no"}})

	vote, err := r.CastVote(ctx, wallet, identity, CastVoteInput{
		ProposalID: p.ID,
		Voter:      "carol",
		Option:     "yes",
		Payload:    []byte("ballot"),
		Signature:  mockSig("carol"),
	})
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if vote.Weight != 1 {
		t.Fatalf("expected weight 1, got %d", vote.Weight)
	}
}

func TestCastVoteRejectsBadSignature(t *testing.T) {
	r, _, wallet, identity := newTestRegistry(t)
	d, _ := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 5, VotingDuration: time.Hour})
	ctx := context.Background()
	p, _ := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "no"}})

	_, err := r.CastVote(ctx, wallet, identity, CastVoteInput{
		ProposalID: p.ID,
		Voter:      "carol",
		Option:     "yes",
		Payload:    []byte("ballot"),
		Signature:  mockSig("someone-else"),
	})
	if err == nil {
		t.Fatalf("expected rejection of mismatched mock signature")
	}
}

func TestCastVoteReplacesPriorBallotInsteadOfStacking(t *testing.T) {
	r, _, wallet, identity := newTestRegistry(t)
	d, _ := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 10, VotingDuration: time.Hour})
	ctx := context.Background()
	p, _ := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "no"}})

	in := CastVoteInput{ProposalID: p.ID, Voter: "dave", Payload: []byte("ballot"), Signature: mockSig("dave")}
	in.Option = "yes"
	if _, err := r.CastVote(ctx, wallet, identity, in); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	in.Option = "no"
	if _, err := r.CastVote(ctx, wallet, identity, in); err != nil {
		t.Fatalf("second vote: %v", err)
	}

	updated, _ := r.GetProposal(p.ID)
	if updated.VoteCount != 1 {
		t.Fatalf("expected vote count to stay at 1 member, got %d", updated.VoteCount)
	}
	if updated.Results["yes"].Count != 0 || updated.Results["no"].Count != 1 {
		t.Fatalf("expected the switched vote to move from yes to no, got %+v", updated.Results)
	}
}

func TestCastVoteAutoClosesOnSupermajorityAtQuorum(t *testing.T) {
	r, _, wallet, identity := newTestRegistry(t)
	d, _ := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 2, VotingDuration: time.Hour})
	ctx := context.Background()
	p, _ := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "no"}})

	voters := []string{"v1", "v2"}
	for _, v := range voters {
		if _, err := r.CastVote(ctx, wallet, identity, CastVoteInput{ProposalID: p.ID, Voter: v, Option: "yes", Payload: []byte("b"), Signature: mockSig(v)}); err != nil {
			t.Fatalf("vote from %s: %v", v, err)
		}
	}

	closed, _ := r.GetProposal(p.ID)
	if closed.Status != ProposalClosed {
		t.Fatalf("expected proposal to auto-close on unanimous supermajority at quorum, got %s", closed.Status)
	}
}

func TestCastVoteRejectedAfterClosure(t *testing.T) {
	r, _, wallet, identity := newTestRegistry(t)
	d, _ := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 1, VotingDuration: time.Hour})
	ctx := context.Background()
	p, _ := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "no"}})

	if _, err := r.CastVote(ctx, wallet, identity, CastVoteInput{ProposalID: p.ID, Voter: "v1", Option: "yes", Payload: []byte("b"), Signature: mockSig("v1")}); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if _, err := r.CastVote(ctx, wallet, identity, CastVoteInput{ProposalID: p.ID, Voter: "v2", Option: "yes", Payload: []byte("b"), Signature: mockSig("v2")}); err == nil {
		t.Fatalf("expected vote to be rejected once the proposal auto-closed")
	}
}

func TestSweepExpiredClosesProposalsPastDeadline(t *testing.T) {
	r, clock, wallet, _ := newTestRegistry(t)
	d, _ := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 100, VotingDuration: time.Hour})
	ctx := context.Background()
	p, _ := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "no"}})

	clock.Advance(2 * time.Hour)
	closed := r.SweepExpired()
	if len(closed) != 1 || closed[0].ID != p.ID {
		t.Fatalf("expected the expired proposal to be swept, got %+v", closed)
	}

	stored, _ := r.GetProposal(p.ID)
	if stored.Status != ProposalClosed {
		t.Fatalf("expected stored proposal to be closed, got %s", stored.Status)
	}
}

func TestAuditTrailRecordsProposalVoteAndClosureEvents(t *testing.T) {
	r, _, wallet, identity := newTestRegistry(t)
	d, _ := r.RegisterDAO(DAO{Visibility: VisibilityPublic, Quorum: 1, VotingDuration: time.Hour})
	ctx := context.Background()
	p, _ := r.CreateProposal(ctx, wallet, CreateProposalInput{DAOID: d.ID, Title: "t", Creator: "alice", Options: []string{"yes", "no"}})
	if _, err := r.CastVote(ctx, wallet, identity, CastVoteInput{ProposalID: p.ID, Voter: "v1", Option: "yes", Payload: []byte("b"), Signature: mockSig("v1")}); err != nil {
		t.Fatalf("cast vote: %v", err)
	}

	trail := r.AuditTrail()
	if len(trail) != 3 {
		t.Fatalf("expected proposed+voted+closed audit records, got %d: %+v", len(trail), trail)
	}
	if trail[0].Event != AuditEventProposed || trail[1].Event != AuditEventVoted || trail[2].Event != AuditEventClosed {
		t.Fatalf("unexpected audit event sequence: %+v", trail)
	}
	for i, rec := range trail {
		if rec.Sequence != uint64(i+1) {
			t.Fatalf("expected monotonic sequence, got %+v", trail)
		}
	}
}
