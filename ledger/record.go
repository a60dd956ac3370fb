// Package ledger implements the append-only, hash-chained execution ledger
// (spec §4.1): every appended record links to the globally-last record by
// hash, carries a vector-clock stamp, and is asynchronously published to
// content-addressed storage with retry.
package ledger

import (
	"encoding/binary"
	"encoding/json"
	"time"
)

// LedgerRecord is one entry in the global hash-chained ledger.
type LedgerRecord struct {
	SequenceNo      uint64            `json:"sequence_no"`
	ExecutionID     string            `json:"execution_id"`
	Timestamp       time.Time         `json:"timestamp"`
	VectorClock     map[string]uint64 `json:"vector_clock"`
	PayloadSummary  string            `json:"payload_summary"`
	PreviousHash    [32]byte          `json:"previous_hash"`
	RecordHash      [32]byte          `json:"record_hash"`
	Published       bool              `json:"published"`
	PublishAttempts int               `json:"publish_attempts"`
	ContentAddress  string            `json:"content_address,omitempty"`
}

// hashableFields returns the deterministic byte encoding over which
// RecordHash is computed: every field except RecordHash itself (a record
// cannot hash in its own hash) and Published/PublishAttempts/ContentAddress,
// which describe publication state reached after the record's identity was
// already fixed.
func (r LedgerRecord) hashableFields() []byte {
	buf := make([]byte, 0, 128)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], r.SequenceNo)
	buf = append(buf, seqBytes[:]...)
	buf = append(buf, []byte(r.ExecutionID)...)
	buf = append(buf, []byte(r.Timestamp.UTC().Format(time.RFC3339Nano))...)
	buf = append(buf, []byte(r.PayloadSummary)...)
	buf = append(buf, r.PreviousHash[:]...)

	clockJSON, _ := json.Marshal(sortedClock(r.VectorClock))
	buf = append(buf, clockJSON...)
	return buf
}

// sortedClock renders a vector clock as an ordered slice of pairs so its
// JSON encoding, and therefore the record hash, is independent of Go's
// randomized map iteration order.
func sortedClock(clock map[string]uint64) [][2]any {
	keys := make([]string, 0, len(clock))
	for k := range clock {
		keys = append(keys, k)
	}
	// Simple insertion sort: vector clocks are small (one entry per node).
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	out := make([][2]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]any{k, clock[k]})
	}
	return out
}

// VerificationReport summarizes a chain-integrity check for one
// execution-id (spec §4.1 verify()).
type VerificationReport struct {
	ChainValid    bool
	TotalRecords  int
	BrokenAt      string // sequence-no-as-string of the first broken record, "" if valid.
	OrphanRecords []string
}
