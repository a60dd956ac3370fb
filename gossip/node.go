// Package gossip implements the gossipsub-style fair distributor (spec
// §4.4): it dispatches a finite job set across a node set under
// backpressure, reannouncing with backoff when no node is eligible and
// reporting Jain's fairness index, lost-job ratio, and starvation.
package gossip

import "sync"

// Job is one unit of work dispatched to a node.
type Job struct {
	ID string
}

// nodeState tracks one participating node's dispatch bookkeeping.
type nodeState struct {
	mu           sync.Mutex
	processing   bool
	jobCount     int
	backoffLevel int
}

func (n *nodeState) snapshot() (processing bool, jobCount, backoffLevel int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.processing, n.jobCount, n.backoffLevel
}
