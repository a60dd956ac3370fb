package sandbox

import (
	"context"
	"sync"

	"qinfinity/ports"
)

// IndexPort is an in-memory IndexPort recording every registered content
// descriptor, keyed by content address, grounded on the teacher's
// in-process index bookkeeping pattern used throughout native/bank's
// secondary lookups (map plus a stable insertion-ordered slice).
type IndexPort struct {
	mu        sync.RWMutex
	byAddress map[string]ports.ContentDescriptor
	inOrder   []string
}

// NewIndexPort constructs an empty sandbox IndexPort.
func NewIndexPort() *IndexPort {
	return &IndexPort{
		byAddress: make(map[string]ports.ContentDescriptor),
	}
}

// Register implements ports.IndexPort.
func (idx *IndexPort) Register(_ context.Context, descriptor ports.ContentDescriptor) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.byAddress[descriptor.ContentAddress]; !exists {
		idx.inOrder = append(idx.inOrder, descriptor.ContentAddress)
	}
	idx.byAddress[descriptor.ContentAddress] = descriptor
	return nil
}

// Lookup returns the descriptor registered for contentAddress, if any.
func (idx *IndexPort) Lookup(contentAddress string) (ports.ContentDescriptor, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	desc, ok := idx.byAddress[contentAddress]
	return desc, ok
}

// ByNamespace returns every registered descriptor under namespace, in
// registration order.
func (idx *IndexPort) ByNamespace(namespace string) []ports.ContentDescriptor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []ports.ContentDescriptor
	for _, addr := range idx.inOrder {
		desc := idx.byAddress[addr]
		if desc.Namespace == namespace {
			out = append(out, desc)
		}
	}
	return out
}

// Count returns the number of distinct content addresses registered.
func (idx *IndexPort) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.inOrder)
}
