package dao

// closureSuperMajority is the landslide threshold spec.md uses to close a
// proposal early once quorum is met: a single option holding more than 80%
// of cast weight ends debate rather than waiting out the full voting
// window.
const closureSuperMajority = 0.8

// evaluateClosureLocked checks spec.md's two auto-closure conditions and,
// if either holds, freezes the proposal. Callers must hold r.mu.
func (r *Registry) evaluateClosureLocked(p *Proposal) {
	if p.Status != ProposalActive {
		return
	}

	expired := !r.clock.Now().Before(p.ExpiresAt)
	landslide := p.VoteCount >= p.Quorum && hasSuperMajority(p.Results)

	if !expired && !landslide {
		return
	}

	p.Status = ProposalClosed
	reason := "voting window elapsed"
	if landslide {
		reason = "supermajority reached"
	}
	r.appendAudit(AuditEventClosed, p.ID, "", reason)
}

// hasSuperMajority reports whether one option holds more than 80% of the
// total weight cast across all options.
func hasSuperMajority(results map[string]*OptionResult) bool {
	var total, max int64
	for _, res := range results {
		total += res.Weight
		if res.Weight > max {
			max = res.Weight
		}
	}
	if total == 0 {
		return false
	}
	return float64(max)/float64(total) > closureSuperMajority
}

// SweepExpired closes every active proposal whose voting window has
// elapsed, for a background timer to drive proposals that never reach
// quorum and so never get auto-closed by CastVote.
func (r *Registry) SweepExpired() []Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()

	var closed []Proposal
	for _, p := range r.proposals {
		if p.Status != ProposalActive {
			continue
		}
		before := p.Status
		r.evaluateClosureLocked(p)
		if p.Status != before {
			closed = append(closed, *p)
		}
	}
	return closed
}
