package quorum

import (
	"context"
	"math"
	"time"

	"qinfinity/clockid"
	"qinfinity/errs"
)

// VoteRequester asks one node for its signed vote on the round, honoring
// ctx's deadline. A timed-out or errored node counts as unresponsive rather
// than failing the round outright.
type VoteRequester func(ctx context.Context, nodeID string) (Vote, error)

// Params describes one coordination request.
type Params struct {
	ExecutionID   string
	StepID        string
	OperationType OperationType
	// Participants is the initial node set, a subset of active nodes (up
	// to 5 per spec).
	Participants []string
	// CandidatePool supplies additional nodes the recovery ladder's
	// expand-participant-set attempt may draw from.
	CandidatePool []string
	RequestVote   VoteRequester
	Deadline      time.Duration
}

const confidenceFloor = 0.8
const maxRecoveryAttempts = 3

// Coordinator runs consensus rounds over an operation-scoped vote set,
// generalized from the teacher's BFT engine's weighted-tally-plus-timeout
// shape into a single request/analyze/recover cycle per operation instead
// of a perpetual height/round loop.
type Coordinator struct {
	ids         clockid.IdService
	clock       clockid.Clock
	baseBackoff time.Duration
}

// NewCoordinator constructs a Coordinator. baseBackoff seeds the recovery
// ladder's exponential backoff (attempt i waits baseBackoff * 2^(i-1));
// if <= 0, a 100ms default is used.
func NewCoordinator(ids clockid.IdService, clock clockid.Clock, baseBackoff time.Duration) *Coordinator {
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}
	return &Coordinator{ids: ids, clock: clock, baseBackoff: baseBackoff}
}

// Coordinate collects votes from Params.Participants, analyzes them against
// the operation type's threshold and the confidence floor, and runs the
// recovery ladder when either check fails.
func (c *Coordinator) Coordinate(ctx context.Context, p Params) (ConsensusRound, error) {
	if p.RequestVote == nil {
		correlationID := c.ids.NewID()
		return ConsensusRound{}, errs.New(errs.KindValidation, correlationID, "quorum: RequestVote is required")
	}

	num, den := p.OperationType.Threshold()
	round := ConsensusRound{
		RoundID:       c.ids.NewID(),
		ExecutionID:   p.ExecutionID,
		StepID:        p.StepID,
		OperationType: p.OperationType,
		RequiredNum:   num,
		RequiredDen:   den,
	}

	participants := append([]string(nil), p.Participants...)
	votes, unresponsive := c.collectVotes(ctx, participants, p.RequestVote, p.Deadline)
	round.ParticipantSize = len(participants)

	reached, decision, confidence := analyze(votes, num, den, len(participants))
	round.Reached = reached
	round.Decision = decision
	round.Confidence = confidence

	attempt := 1
	candidatePool := append([]string(nil), p.CandidatePool...)
	for (!round.Reached || round.Confidence < confidenceFloor) && attempt <= maxRecoveryAttempts {
		c.sleepBackoff(attempt)
		action, newVotes, newUnresponsive := c.runRecoveryAttempt(ctx, attempt, p, participants, unresponsive, candidatePool, votes)
		votes = newVotes
		unresponsive = newUnresponsive
		if action == "expand_participant_set" {
			participants = expandedSet(participants, candidatePool)
			round.ParticipantSize = len(participants)
		}

		simplified := attempt == maxRecoveryAttempts
		var ok bool
		if simplified {
			ok, decision, confidence = fallbackConsensus(votes)
		} else {
			ok, decision, confidence = analyze(votes, num, den, len(participants))
		}
		round.Reached = ok
		round.Decision = decision
		round.Confidence = confidence

		succeeded := round.Reached && (simplified || round.Confidence >= confidenceFloor)
		round.RecoveryLog = append(round.RecoveryLog, RecoveryAttempt{
			AttemptIndex: attempt,
			Action:       action,
			At:           c.clock.Now(),
			Succeeded:    succeeded,
		})
		if succeeded {
			break
		}
		attempt++
	}

	round.Votes = archiveVotes(votes)
	return round, nil
}

func (c *Coordinator) sleepBackoff(attempt int) {
	delay := c.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > 0 {
		time.Sleep(delay)
	}
}

// runRecoveryAttempt performs the attempt-indexed action: (1) retry vote
// collection from unresponsive nodes, (2) expand the participant set and
// collect votes from the new members, (3) fall back to a simpler consensus
// mechanism using whatever votes are already in hand.
func (c *Coordinator) runRecoveryAttempt(
	ctx context.Context,
	attempt int,
	p Params,
	participants, unresponsive, candidatePool []string,
	votes map[string]Vote,
) (action string, mergedVotes map[string]Vote, newUnresponsive []string) {
	switch attempt {
	case 1:
		retried, stillUnresponsive := c.collectVotes(ctx, unresponsive, p.RequestVote, p.Deadline)
		return "retry_unresponsive_nodes", mergeVotes(votes, retried), stillUnresponsive
	case 2:
		expansion := newMembers(participants, candidatePool)
		collected, stillUnresponsive := c.collectVotes(ctx, expansion, p.RequestVote, p.Deadline)
		return "expand_participant_set", mergeVotes(votes, collected), stillUnresponsive
	default:
		return "fallback_simple_consensus", votes, unresponsive
	}
}

func (c *Coordinator) collectVotes(ctx context.Context, nodeIDs []string, request VoteRequester, deadline time.Duration) (map[string]Vote, []string) {
	votes := make(map[string]Vote, len(nodeIDs))
	var unresponsive []string
	for _, nodeID := range nodeIDs {
		nodeCtx := ctx
		var cancel context.CancelFunc
		if deadline > 0 {
			nodeCtx, cancel = context.WithTimeout(ctx, deadline)
		}
		vote, err := request(nodeCtx, nodeID)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			unresponsive = append(unresponsive, nodeID)
			continue
		}
		votes[nodeID] = vote
	}
	return votes, unresponsive
}

func mergeVotes(base, extra map[string]Vote) map[string]Vote {
	merged := make(map[string]Vote, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func newMembers(existing, pool []string) []string {
	present := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		present[id] = struct{}{}
	}
	var fresh []string
	for _, id := range pool {
		if _, ok := present[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh
}

func expandedSet(existing, pool []string) []string {
	return append(append([]string(nil), existing...), newMembers(existing, pool)...)
}

// analyze implements the spec's tally rule: reached requires collected
// votes to clear the operation-type threshold scaled to the participant
// set size; the majority decision's confidence is avg(per-vote confidence)
// times (max-count / total-count).
func analyze(votes map[string]Vote, num, den, participantSize int) (reached bool, decision Decision, confidence float64) {
	required := int(math.Ceil(float64(num) / float64(den) * float64(participantSize)))
	if len(votes) < required {
		return false, "", 0
	}
	return tally(votes)
}

// fallbackConsensus is the attempt-3 simplified mechanism: accept whatever
// majority decision the collected votes show, without re-checking the
// operation-type threshold.
func fallbackConsensus(votes map[string]Vote) (reached bool, decision Decision, confidence float64) {
	if len(votes) == 0 {
		return false, "", 0
	}
	return tally(votes)
}

func tally(votes map[string]Vote) (bool, Decision, float64) {
	counts := map[Decision]int{}
	confidenceSum := map[Decision]float64{}
	for _, v := range votes {
		counts[v.Decision]++
		confidenceSum[v.Decision] += v.Confidence
	}

	var winner Decision
	maxCount := 0
	for d, n := range counts {
		if n > maxCount {
			maxCount = n
			winner = d
		}
	}
	if maxCount == 0 {
		return false, "", 0
	}

	total := len(votes)
	avgConfidence := 0.0
	for _, v := range votes {
		avgConfidence += v.Confidence
	}
	avgConfidence /= float64(total)

	confidence := avgConfidence * (float64(maxCount) / float64(total))
	return true, winner, confidence
}

func archiveVotes(votes map[string]Vote) []archivedVote {
	archived := make([]archivedVote, 0, len(votes))
	for _, v := range votes {
		archived = append(archived, archivedVote{NodeID: v.NodeID, Decision: v.Decision, Confidence: v.Confidence})
	}
	return archived
}
