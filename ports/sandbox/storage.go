package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qinfinity/clockid"
	"qinfinity/ports"
	"qinfinity/storage"

	"github.com/btcsuite/btcutil/bech32"
	"lukechampine.com/blake3"
)

// ContentStoragePort is an in-memory, content-addressed blob store backed
// by storage.Database (MemDB in the tests and the demo orchestrator).
// Content addresses are bech32-encoded blake3 digests, giving them the same
// opaque, CID-shaped look spec.md describes without depending on a real
// IPFS client.
type ContentStoragePort struct {
	mu    sync.RWMutex
	db    storage.Database
	stat  map[string]ports.ContentDescriptor
	clock clockid.Clock
}

// NewContentStoragePort wraps a storage.Database as a ContentStoragePort.
func NewContentStoragePort(db storage.Database, clock clockid.Clock) *ContentStoragePort {
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	return &ContentStoragePort{
		db:    db,
		stat:  make(map[string]ports.ContentDescriptor),
		clock: clock,
	}
}

func encodeContentAddress(digest [32]byte) (string, error) {
	conv, err := bech32.ConvertBits(digest[:], 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode("qcid", conv)
}

// Put implements ports.ContentStoragePort.
func (s *ContentStoragePort) Put(_ context.Context, data []byte, name, namespace string) (string, error) {
	digest := blake3.Sum256(data)
	address, err := encodeContentAddress(digest)
	if err != nil {
		return "", fmt.Errorf("sandbox storage: encode address: %w", err)
	}
	if err := s.db.Put([]byte(address), data); err != nil {
		return "", fmt.Errorf("sandbox storage: put: %w", err)
	}
	s.mu.Lock()
	s.stat[address] = ports.ContentDescriptor{
		ContentAddress: address,
		SizeBytes:      int64(len(data)),
		Namespace:      namespace,
		Name:           name,
		PublishedAt:    s.clock.Now(),
	}
	s.mu.Unlock()
	return address, nil
}

// Get implements ports.ContentStoragePort.
func (s *ContentStoragePort) Get(_ context.Context, contentAddress string) ([]byte, error) {
	value, err := s.db.Get([]byte(contentAddress))
	if err != nil {
		return nil, fmt.Errorf("sandbox storage: get: %w", err)
	}
	return value, nil
}

// Stat implements ports.ContentStoragePort.
func (s *ContentStoragePort) Stat(_ context.Context, contentAddress string) (ports.ContentDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	desc, ok := s.stat[contentAddress]
	if !ok {
		return ports.ContentDescriptor{}, fmt.Errorf("sandbox storage: no descriptor for %q", contentAddress)
	}
	return desc, nil
}

// MockCID generates a deterministic fallback content address for when
// publication is unavailable (spec §5: "external content-addressed-storage
// publication uses a bounded timeout with a mock fallback CID when
// unavailable").
func MockCID(seed string, at time.Time) string {
	digest := blake3.Sum256([]byte(fmt.Sprintf("mock|%s|%d", seed, at.UnixNano())))
	address, err := encodeContentAddress(digest)
	if err != nil {
		return "qcid1mock"
	}
	return address
}
