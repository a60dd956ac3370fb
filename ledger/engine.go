package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"qinfinity/clockid"
	"qinfinity/errs"
	"qinfinity/storage"

	"lukechampine.com/blake3"
)

const (
	seqKeyPrefix  = "seq:"
	execKeyPrefix = "exec:"
)

// Engine is the append-only, hash-chained execution ledger described in
// spec §4.1. One Engine owns a single global chain; executions are a
// logical grouping within it, not separate chains.
type Engine struct {
	mu     sync.Mutex
	db     storage.Database
	clock  clockid.Clock
	ids    clockid.IdService
	vclock *clockid.VectorClock
	nodeID string

	lastSeq  uint64
	lastHash [32]byte

	retention time.Duration

	publisher *Publisher
}

// NewEngine constructs a ledger Engine and restores chain state from db if
// it already holds records (e.g. a LevelDB-backed store surviving a
// restart).
func NewEngine(db storage.Database, clock clockid.Clock, ids clockid.IdService, nodeID string, retention time.Duration, publisher *Publisher) (*Engine, error) {
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	e := &Engine{
		db:        db,
		clock:     clock,
		ids:       ids,
		vclock:    clockid.NewVectorClock(nodeID),
		nodeID:    nodeID,
		retention: retention,
		publisher: publisher,
	}
	if err := e.restore(); err != nil {
		return nil, err
	}
	return e, nil
}

// restore scans the sequence keyspace to recover the last sequence number
// and hash, so the chain continues correctly across process restarts.
func (e *Engine) restore() error {
	var last LedgerRecord
	found := false
	err := e.db.Iterate([]byte(seqKeyPrefix), func(_ []byte, value []byte) error {
		var rec LedgerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		if !found || rec.SequenceNo > last.SequenceNo {
			last = rec
			found = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger: restore: %w", err)
	}
	if found {
		e.lastSeq = last.SequenceNo
		e.lastHash = last.RecordHash
	}
	return nil
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, len(seqKeyPrefix)+8)
	copy(buf, seqKeyPrefix)
	binary.BigEndian.PutUint64(buf[len(seqKeyPrefix):], seq)
	return buf
}

func execKey(executionID string, seq uint64) []byte {
	buf := make([]byte, 0, len(execKeyPrefix)+len(executionID)+9)
	buf = append(buf, execKeyPrefix...)
	buf = append(buf, executionID...)
	buf = append(buf, ':')
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	return append(buf, seqBytes[:]...)
}

// Append implements spec §4.1's append(execution-id, payload). Publication
// to content-addressed storage is fire-and-forget from the caller's
// perspective: a publish failure degrades the record to Published=false
// without failing the append itself.
func (e *Engine) Append(ctx context.Context, executionID, payloadSummary string) (LedgerRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	correlationID := e.ids.NewID()

	if e.lastSeq > 0 {
		prevKey := seqKey(e.lastSeq)
		raw, err := e.db.Get(prevKey)
		if err != nil {
			return LedgerRecord{}, errs.Wrap(errs.KindIntegrityViolation, correlationID, err, "ledger: read last record")
		}
		var prev LedgerRecord
		if err := json.Unmarshal(raw, &prev); err != nil {
			return LedgerRecord{}, errs.Wrap(errs.KindInternal, correlationID, err, "ledger: decode last record")
		}
		if prev.hash() != e.lastHash {
			return LedgerRecord{}, errs.New(errs.KindIntegrityViolation, correlationID, "ledger: chain broken, last record hash mismatch")
		}
	}

	e.vclock.Tick()
	seq := e.lastSeq + 1
	rec := LedgerRecord{
		SequenceNo:     seq,
		ExecutionID:    executionID,
		Timestamp:      e.clock.Now(),
		VectorClock:    e.vclock.Snapshot(),
		PayloadSummary: payloadSummary,
		PreviousHash:   e.lastHash,
	}
	rec.RecordHash = rec.hash()

	raw, err := json.Marshal(rec)
	if err != nil {
		return LedgerRecord{}, errs.Wrap(errs.KindInternal, correlationID, err, "ledger: marshal record")
	}
	if err := e.db.Put(seqKey(seq), raw); err != nil {
		return LedgerRecord{}, errs.Wrap(errs.KindInternal, correlationID, err, "ledger: persist record")
	}
	if err := e.db.Put(execKey(executionID, seq), []byte{}); err != nil {
		return LedgerRecord{}, errs.Wrap(errs.KindInternal, correlationID, err, "ledger: persist execution index")
	}

	e.lastSeq = seq
	e.lastHash = rec.RecordHash

	if e.publisher != nil {
		e.publisher.Enqueue(rec, func(contentAddress string) {
			e.markPublished(seq, contentAddress)
		})
	}

	return rec, nil
}

func (e *Engine) markPublished(seq uint64, contentAddress string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	raw, err := e.db.Get(seqKey(seq))
	if err != nil {
		return
	}
	var rec LedgerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return
	}
	rec.Published = true
	rec.ContentAddress = contentAddress
	updated, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = e.db.Put(seqKey(seq), updated)
}

// hash computes the deterministic record hash over the record's identity
// fields using blake3.
func (r LedgerRecord) hash() [32]byte {
	return blake3.Sum256(r.hashableFields())
}

// RecordsForExecution returns every record belonging to executionID, sorted
// by timestamp.
func (e *Engine) RecordsForExecution(executionID string) ([]LedgerRecord, error) {
	var seqs []uint64
	prefix := append([]byte(execKeyPrefix), append([]byte(executionID), ':')...)
	err := e.db.Iterate(prefix, func(key []byte, _ []byte) error {
		if len(key) < 8 {
			return nil
		}
		seqs = append(seqs, binary.BigEndian.Uint64(key[len(key)-8:]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: iterate execution index: %w", err)
	}
	records := make([]LedgerRecord, 0, len(seqs))
	for _, seq := range seqs {
		raw, err := e.db.Get(seqKey(seq))
		if err != nil {
			return nil, fmt.Errorf("ledger: read record %d: %w", seq, err)
		}
		var rec LedgerRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("ledger: decode record %d: %w", seq, err)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	return records, nil
}

// Verify implements spec §4.1's verify(execution-id): recompute every
// record's hash belonging to executionID, then check previous-hash linkage
// among that execution's own records in timestamp order.
func (e *Engine) Verify(executionID string) (VerificationReport, error) {
	var all []LedgerRecord
	err := e.db.Iterate([]byte(seqKeyPrefix), func(_ []byte, value []byte) error {
		var rec LedgerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		all = append(all, rec)
		return nil
	})
	if err != nil {
		return VerificationReport{}, fmt.Errorf("ledger: verify: iterate: %w", err)
	}

	var subset []LedgerRecord
	for _, rec := range all {
		if rec.ExecutionID == executionID {
			subset = append(subset, rec)
		}
	}
	sort.Slice(subset, func(i, j int) bool { return subset[i].Timestamp.Before(subset[j].Timestamp) })

	// hashByValue spans every execution, not just subset: PreviousHash is a
	// single global chain link (Engine.lastHash), so a subset's first record
	// legitimately points at another execution's record and must resolve
	// against the full hash set to avoid a false orphan.
	hashByValue := make(map[[32]byte]bool, len(all))
	for _, rec := range all {
		if rec.hash() != rec.RecordHash && rec.ExecutionID == executionID {
			return VerificationReport{
				ChainValid:   false,
				TotalRecords: len(subset),
				BrokenAt:     fmt.Sprintf("%d", rec.SequenceNo),
			}, nil
		}
		hashByValue[rec.RecordHash] = true
	}

	report := VerificationReport{ChainValid: true, TotalRecords: len(subset)}
	var zero [32]byte
	for i, rec := range subset {
		if rec.PreviousHash != zero && !hashByValue[rec.PreviousHash] {
			report.OrphanRecords = append(report.OrphanRecords, fmt.Sprintf("%d", rec.SequenceNo))
		}
		if i > 0 && rec.PreviousHash != subset[i-1].RecordHash {
			if report.BrokenAt == "" {
				report.ChainValid = false
				report.BrokenAt = fmt.Sprintf("%d", rec.SequenceNo)
			}
		}
	}
	return report, nil
}

// ApplyRetention deletes every record (and its execution index entry)
// older than the retention window, the only form of deletion the ledger
// permits (spec §4.1: "deletion only by a bulk retention policy").
func (e *Engine) ApplyRetention() (int, error) {
	if e.retention <= 0 {
		return 0, nil
	}
	cutoff := e.clock.Now().Add(-e.retention)
	var toDelete []LedgerRecord
	err := e.db.Iterate([]byte(seqKeyPrefix), func(_ []byte, value []byte) error {
		var rec LedgerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		if rec.Timestamp.Before(cutoff) {
			toDelete = append(toDelete, rec)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: retention: iterate: %w", err)
	}
	for _, rec := range toDelete {
		if err := e.db.Delete(seqKey(rec.SequenceNo)); err != nil {
			return 0, fmt.Errorf("ledger: retention: delete record %d: %w", rec.SequenceNo, err)
		}
		if err := e.db.Delete(execKey(rec.ExecutionID, rec.SequenceNo)); err != nil {
			return 0, fmt.Errorf("ledger: retention: delete index %d: %w", rec.SequenceNo, err)
		}
	}
	return len(toDelete), nil
}
