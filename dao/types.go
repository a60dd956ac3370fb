// Package dao implements the DAO Service (spec §4.9): DAO registry,
// proposal lifecycle, weighted voting, and auto-closure, directly adapted
// from the teacher's native/governance engine (closed status/choice enums,
// append-only audit log) and retargeted from on-chain parameter-update
// proposals to spec.md's member-option-vote model.
package dao

import "time"

// Visibility is a DAO's closed visibility enum.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityDAOOnly Visibility = "dao-only"
	VisibilityPrivate Visibility = "private"
)

// TokenRequirement gates proposal creation and sets the weighted-vote basis
// when set on a DAO.
type TokenRequirement struct {
	Currency  string
	MinAmount int64 // minimal units
}

// DAO is one registered organization.
type DAO struct {
	ID               string
	Visibility       Visibility
	Quorum           int
	VotingDuration   time.Duration
	TokenRequirement *TokenRequirement
	IsActive         bool
}

// ProposalStatus is the closed lifecycle enum a Proposal transitions
// through, modeled after the teacher's ProposalStatus (closed enum + a
// single transition function) but narrowed to the two states spec.md
// names: active and closed.
type ProposalStatus string

const (
	ProposalActive ProposalStatus = "active"
	ProposalClosed ProposalStatus = "closed"
)

// OptionResult is one option's accumulated vote count and weight.
type OptionResult struct {
	Count  int
	Weight int64
}

// Proposal is one DAO's proposal under vote.
type Proposal struct {
	ID          string
	DAOID       string
	Title       string
	Description string
	Options     []string // size >= 2, unique, stable order
	Creator     string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Status      ProposalStatus
	Quorum      int
	Results     map[string]*OptionResult // option -> result
	VoteCount   int
}

// Vote is one member's ballot on a proposal.
type Vote struct {
	ID         string
	ProposalID string
	Voter      string
	Option     string
	Weight     int64
	Signature  []byte
	Timestamp  time.Time
	Verified   bool
}

// AuditEvent names a DAO lifecycle milestone, modeled after the teacher's
// AuditEvent closed enum.
type AuditEvent string

const (
	AuditEventProposed AuditEvent = "proposed"
	AuditEventVoted    AuditEvent = "voted"
	AuditEventClosed   AuditEvent = "closed"
)

// AuditRecord is one append-only DAO lifecycle entry.
type AuditRecord struct {
	Sequence   uint64
	Timestamp  time.Time
	Event      AuditEvent
	ProposalID string
	Actor      string
	Details    string
}
