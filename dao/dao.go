package dao

import (
	"sync"

	"qinfinity/clockid"
	"qinfinity/errs"
)

// Registry holds DAOs and their proposals, modeled after the teacher's
// governance Engine: a single mutex-guarded map keyed by id plus an
// append-only audit log, but narrowed to spec.md's simpler two-state
// proposal lifecycle.
type Registry struct {
	ids   clockid.IdService
	clock clockid.Clock

	mu        sync.Mutex
	daos      map[string]*DAO
	proposals map[string]*Proposal
	votes     map[string]map[string]*Vote // proposalID -> voter -> vote
	audit     []AuditRecord
	seq       uint64
}

// NewRegistry constructs an empty Registry.
func NewRegistry(ids clockid.IdService, clock clockid.Clock) *Registry {
	return &Registry{
		ids:       ids,
		clock:     clock,
		daos:      make(map[string]*DAO),
		proposals: make(map[string]*Proposal),
		votes:     make(map[string]map[string]*Vote),
	}
}

// RegisterDAO adds a DAO to the registry.
func (r *Registry) RegisterDAO(d DAO) (DAO, error) {
	if d.ID == "" {
		d.ID = r.ids.NewID()
	}
	if d.Quorum <= 0 {
		return DAO{}, errs.New(errs.KindValidation, d.ID, "dao quorum must be positive, got %d", d.Quorum)
	}
	if d.VotingDuration <= 0 {
		return DAO{}, errs.New(errs.KindValidation, d.ID, "dao voting duration must be positive")
	}
	switch d.Visibility {
	case VisibilityPublic, VisibilityDAOOnly, VisibilityPrivate:
	default:
		return DAO{}, errs.New(errs.KindValidation, d.ID, "unknown dao visibility %q", d.Visibility)
	}
	d.IsActive = true

	r.mu.Lock()
	defer r.mu.Unlock()
	r.daos[d.ID] = &d
	return d, nil
}

// GetDAO returns the DAO with id, if any.
func (r *Registry) GetDAO(id string) (DAO, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.daos[id]
	if !ok {
		return DAO{}, false
	}
	return *d, true
}

// GetProposal returns the proposal with id, if any.
func (r *Registry) GetProposal(id string) (Proposal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return Proposal{}, false
	}
	return *p, true
}

// AuditTrail returns a copy of the append-only audit log.
func (r *Registry) AuditTrail() []AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditRecord, len(r.audit))
	copy(out, r.audit)
	return out
}

func (r *Registry) appendAudit(event AuditEvent, proposalID, actor, details string) {
	r.seq++
	r.audit = append(r.audit, AuditRecord{
		Sequence:   r.seq,
		Timestamp:  r.clock.Now(),
		Event:      event,
		ProposalID: proposalID,
		Actor:      actor,
		Details:    details,
	})
}
