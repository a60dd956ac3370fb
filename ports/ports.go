// Package ports defines the capability-port contracts the control plane
// depends on (spec §6). Crypto, content storage, identity, wallet, index,
// audit, and event-bus concerns are owned by the wider Q∞ ecosystem
// (Qlock, Qonsent, Qindex, Qerberos, Qwallet, sQuid, IPFS); the core never
// imports their concrete types, only these narrow interfaces. Every port is
// swappable; ports/sandbox provides in-memory test doubles that satisfy
// them for the demo orchestrator and for tests.
package ports

import (
	"context"
	"time"
)

// EncryptionLevel selects the strength/profile of an encrypt operation. The
// concrete meaning is owned by the CryptoPort implementation; the core only
// threads the value through.
type EncryptionLevel string

const (
	EncryptionLevelStandard EncryptionLevel = "standard"
	EncryptionLevelHigh     EncryptionLevel = "high"
)

// CryptoPort is the narrow interface onto the ecosystem's cryptographic
// module (Qlock). All operations are context-bound so callers can enforce a
// deadline.
type CryptoPort interface {
	// Hash returns the 256-bit digest of the supplied bytes.
	Hash(ctx context.Context, data []byte) ([32]byte, error)
	// Encrypt returns ciphertext and implementation-defined metadata needed
	// to invert the operation later (e.g. via Decrypt).
	Encrypt(ctx context.Context, plaintext []byte, level EncryptionLevel) (ciphertext []byte, metadata []byte, err error)
	// Decrypt inverts Encrypt given the metadata it returned.
	Decrypt(ctx context.Context, ciphertext []byte, metadata []byte) ([]byte, error)
	// Sign produces a signature over payload attributed to identity.
	Sign(ctx context.Context, payload []byte, identity string) ([]byte, error)
	// Verify reports whether signature is a valid signature over payload
	// attributed to identity.
	Verify(ctx context.Context, payload []byte, signature []byte, identity string) (bool, error)
}

// ContentDescriptor describes a blob previously published to content
// storage.
type ContentDescriptor struct {
	ContentAddress string
	SizeBytes      int64
	Namespace      string
	Name           string
	PublishedAt    time.Time
}

// ContentStoragePort is the narrow interface onto the ecosystem's
// content-addressed storage (IPFS). Failure is reported, never thrown
// through: callers decide whether to retry.
type ContentStoragePort interface {
	Put(ctx context.Context, data []byte, name, namespace string) (contentAddress string, err error)
	Get(ctx context.Context, contentAddress string) ([]byte, error)
	Stat(ctx context.Context, contentAddress string) (ContentDescriptor, error)
}

// IdentityPort is the narrow interface onto the ecosystem's identity module
// (sQuid).
type IdentityPort interface {
	// IsMember reports whether identity belongs to group.
	IsMember(ctx context.Context, identity, group string) (bool, error)
	// Descriptor returns a compact, loggable representation of identity.
	Descriptor(ctx context.Context, identity string) (string, error)
	// VerifySignature verifies a signature attributed to identity over
	// payload. In sandbox mode (see ports/sandbox), a fixed
	// "mock_signature_" prefix is accepted as a trust bypass; outside
	// sandbox mode real verification is required.
	VerifySignature(ctx context.Context, identity string, payload, signature []byte) (bool, error)
}

// WalletPort is the narrow interface onto the ecosystem's wallet module
// (Qwallet). Every mutating operation is idempotent on the returned
// transaction id.
type WalletPort interface {
	Balance(ctx context.Context, identity, currency string) (Amount, error)
	Debit(ctx context.Context, identity string, amount Amount, currency string) (transactionID string, err error)
	Credit(ctx context.Context, identity string, amount Amount, currency string) (transactionID string, err error)
	ListNFTs(ctx context.Context, identity string) ([]string, error)
}

// IndexPort is the narrow interface onto the ecosystem's indexing module
// (Qindex): it registers payload descriptors for later retrieval.
type IndexPort interface {
	Register(ctx context.Context, descriptor ContentDescriptor) error
}

// AuditPort is the narrow interface onto the ecosystem's audit module
// (Qerberos): it logs an event for later audit.
type AuditPort interface {
	LogEvent(ctx context.Context, actor, action string, details map[string]string) error
}

// Envelope is the structure carried on every EventBusPort topic (spec §6):
// event id, topic, timestamp, actor, and an opaque payload.
type Envelope struct {
	EventID   string
	Topic     string
	Timestamp time.Time
	Actor     Actor
	Payload   map[string]any
}

// Actor identifies who or what caused an event.
type Actor struct {
	Identity string
	Role     string
}

// Handler processes a delivered envelope. Delivery is at-least-once;
// handlers must be idempotent on Envelope.EventID.
type Handler func(ctx context.Context, env Envelope) error

// EventBusPort is the narrow interface onto the ecosystem's event bus.
type EventBusPort interface {
	Publish(ctx context.Context, topic string, env Envelope) error
	Subscribe(ctx context.Context, topicPattern string, handler Handler) (unsubscribe func(), err error)
}
