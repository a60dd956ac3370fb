package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qinfinity/ports"
	"qinfinity/ports/sandbox"
)

// Publisher asynchronously pushes appended records to content-addressed
// storage, retrying with exponential backoff. Grounded on the teacher's
// "log once" sync.Map gate in native/fees's free-tier warning path,
// generalized here into per-record retry-attempt bookkeeping instead of a
// one-shot flag.
type Publisher struct {
	storage    ports.ContentStoragePort
	maxRetries int
	baseDelay  time.Duration

	mu      sync.Mutex
	pending int
	wg      sync.WaitGroup
}

// NewPublisher constructs a Publisher bounded to maxRetries attempts,
// waiting baseDelay*2^attempt between each.
func NewPublisher(storage ports.ContentStoragePort, maxRetries int, baseDelay time.Duration) *Publisher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	return &Publisher{storage: storage, maxRetries: maxRetries, baseDelay: baseDelay}
}

// Enqueue publishes rec in the background, invoking onPublished with the
// resulting content address on success. Failure after exhausting retries
// falls back to a deterministic mock content address (spec §5: "bounded
// timeout with a mock fallback CID when unavailable") so downstream
// consumers always observe some address rather than an empty string.
func (p *Publisher) Enqueue(rec LedgerRecord, onPublished func(contentAddress string)) {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.pending--
			p.mu.Unlock()
		}()

		name := fmt.Sprintf("ledger-record-%d", rec.SequenceNo)
		var address string
		var err error
		for attempt := 0; attempt < p.maxRetries; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			address, err = p.storage.Put(ctx, recordPayload(rec), name, "ledger")
			cancel()
			if err == nil {
				onPublished(address)
				return
			}
			time.Sleep(p.baseDelay * time.Duration(1<<uint(attempt)))
		}
		onPublished(sandbox.MockCID(name, rec.Timestamp))
	}()
}

// Wait blocks until every enqueued publication has completed, for use by
// tests and clean shutdown.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

// Pending reports the number of publications still in flight.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func recordPayload(rec LedgerRecord) []byte {
	return []byte(fmt.Sprintf("%d|%s|%s", rec.SequenceNo, rec.ExecutionID, rec.PayloadSummary))
}
