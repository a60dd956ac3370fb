package clockid

import (
	"sort"
	"sync"
)

// VectorClock tracks a monotonically increasing counter per node id,
// providing a causal partial order across events authored on different
// nodes without relying on a shared wall clock.
type VectorClock struct {
	mu      sync.Mutex
	counts  map[string]uint64
	ownerID string
}

// NewVectorClock returns a VectorClock owned by the given node id.
func NewVectorClock(ownerID string) *VectorClock {
	return &VectorClock{
		counts:  make(map[string]uint64),
		ownerID: ownerID,
	}
}

// Tick increments the owner's counter and returns an immutable snapshot of
// the clock to attach to the event being emitted.
func (vc *VectorClock) Tick() map[string]uint64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.counts[vc.ownerID]++
	return vc.snapshotLocked()
}

// Merge folds a received snapshot into the local clock: every key takes the
// max of the local and remote counter, then the owner's own counter is
// incremented so the merge itself counts as a local event.
func (vc *VectorClock) Merge(remote map[string]uint64) map[string]uint64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	for node, count := range remote {
		if existing := vc.counts[node]; count > existing {
			vc.counts[node] = count
		}
	}
	vc.counts[vc.ownerID]++
	return vc.snapshotLocked()
}

// Snapshot returns the current clock state without advancing it.
func (vc *VectorClock) Snapshot() map[string]uint64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.snapshotLocked()
}

func (vc *VectorClock) snapshotLocked() map[string]uint64 {
	out := make(map[string]uint64, len(vc.counts))
	for k, v := range vc.counts {
		out[k] = v
	}
	return out
}

// HappensBefore reports whether a happens-before b: every key in a is <= the
// corresponding key in b, and at least one is strictly less.
func HappensBefore(a, b map[string]uint64) bool {
	strictlyLess := false
	for node, av := range a {
		bv := b[node]
		if av > bv {
			return false
		}
		if av < bv {
			strictlyLess = true
		}
	}
	for node, bv := range b {
		if _, ok := a[node]; !ok && bv > 0 {
			strictlyLess = true
		}
	}
	return strictlyLess
}

// SortedNodes returns the node ids present in the clock in stable order, for
// deterministic serialization.
func SortedNodes(clock map[string]uint64) []string {
	nodes := make([]string, 0, len(clock))
	for node := range clock {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}
