package clockid

import "github.com/google/uuid"

// IdService generates unique identifiers for ledger records, payment
// intents, proposals, votes, consensus rounds, and correlation ids.
type IdService interface {
	NewID() string
}

// UUIDService generates RFC 4122 UUIDv4 identifiers.
type UUIDService struct{}

// NewID implements IdService.
func (UUIDService) NewID() string { return uuid.NewString() }

// SequentialIDService generates deterministic ids for replay-friendly tests:
// each id is a name-based (SHA-1) UUID of the prefix and an incrementing
// counter, so the sequence repeats exactly but the ids themselves do not
// sort in generation order. Not safe for concurrent use across goroutines
// without external synchronization by design: callers that need determinism
// generally also need single-threaded ordering.
type SequentialIDService struct {
	prefix string
	next   uint64
}

// NewSequentialIDService returns a deterministic id generator seeded at zero.
func NewSequentialIDService(prefix string) *SequentialIDService {
	return &SequentialIDService{prefix: prefix}
}

// NewID implements IdService.
func (s *SequentialIDService) NewID() string {
	s.next++
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(formatSeq(s.prefix, s.next))).String()
}

func formatSeq(prefix string, n uint64) string {
	buf := make([]byte, 0, len(prefix)+20)
	buf = append(buf, prefix...)
	buf = append(buf, '-')
	return string(appendUint(buf, n))
}

func appendUint(buf []byte, n uint64) []byte {
	if n == 0 {
		return append(buf, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
	}
	return append(buf, tmp[i:]...)
}
