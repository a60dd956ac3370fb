// Package sandbox provides in-memory, deterministic implementations of
// every capability port in package ports. They are the test doubles used
// by the demo orchestrator and by unit tests; production deployments wire
// real Qlock/Qonsent/Qindex/Qerberos/Qwallet/sQuid/IPFS clients behind the
// same interfaces instead.
package sandbox

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	qcrypto "qinfinity/crypto"
	"qinfinity/ports"

	"lukechampine.com/blake3"
)

// CryptoPort is an in-memory CryptoPort backed by ECDSA signing keys and
// AES-GCM encryption, grounded on the teacher's crypto package (ECDSA via
// go-ethereum/crypto, bech32 addressing) with blake3 as the hash function.
type CryptoPort struct {
	mu          sync.RWMutex
	identityKey map[string]*qcrypto.PrivateKey
	encKey      [32]byte
}

// NewCryptoPort constructs a sandbox CryptoPort. The encryption key is
// generated once at construction and shared by every Encrypt/Decrypt call,
// matching the sandbox's deterministic-replay requirement (design note
// "Determinism dials" covers randomness in simulators, not key material).
func NewCryptoPort() *CryptoPort {
	var key [32]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		panic(fmt.Sprintf("sandbox: failed to seed encryption key: %v", err))
	}
	return &CryptoPort{
		identityKey: make(map[string]*qcrypto.PrivateKey),
		encKey:      key,
	}
}

// Register associates an identity string with a signing key, so subsequent
// Sign/Verify calls for that identity succeed. Identities without a
// registered key cannot sign.
func (c *CryptoPort) Register(identity string, key *qcrypto.PrivateKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identityKey[identity] = key
}

// Hash implements ports.CryptoPort using blake3, the teacher's direct (but
// previously unwired) dependency chosen for its append-rate hash-chaining
// throughput over sha256.
func (c *CryptoPort) Hash(_ context.Context, data []byte) ([32]byte, error) {
	return blake3.Sum256(data), nil
}

// Encrypt implements ports.CryptoPort with AES-256-GCM. The encryption
// level only changes the emitted metadata tag; the sandbox does not vary
// cipher strength by level since it has no real KMS to escalate.
func (c *CryptoPort) Encrypt(_ context.Context, plaintext []byte, level ports.EncryptionLevel) ([]byte, []byte, error) {
	block, err := aes.NewCipher(c.encKey[:])
	if err != nil {
		return nil, nil, fmt.Errorf("sandbox crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("sandbox crypto: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("sandbox crypto: nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	metadata := append([]byte(level+"|"), nonce...)
	return ciphertext, metadata, nil
}

// Decrypt implements ports.CryptoPort, inverting Encrypt given its metadata.
func (c *CryptoPort) Decrypt(_ context.Context, ciphertext []byte, metadata []byte) ([]byte, error) {
	sep := -1
	for i, b := range metadata {
		if b == '|' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return nil, fmt.Errorf("sandbox crypto: malformed metadata")
	}
	nonce := metadata[sep+1:]
	block, err := aes.NewCipher(c.encKey[:])
	if err != nil {
		return nil, fmt.Errorf("sandbox crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sandbox crypto: new gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("sandbox crypto: bad nonce length")
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("sandbox crypto: decrypt: %w", err)
	}
	return plaintext, nil
}

// Sign implements ports.CryptoPort using the registered identity's ECDSA key.
func (c *CryptoPort) Sign(ctx context.Context, payload []byte, identity string) ([]byte, error) {
	c.mu.RLock()
	key, ok := c.identityKey[identity]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sandbox crypto: no signing key registered for %q", identity)
	}
	digest, err := c.Hash(ctx, payload)
	if err != nil {
		return nil, err
	}
	return key.Sign(digest)
}

// Verify implements ports.CryptoPort.
func (c *CryptoPort) Verify(ctx context.Context, payload []byte, signature []byte, identity string) (bool, error) {
	c.mu.RLock()
	key, ok := c.identityKey[identity]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	digest, err := c.Hash(ctx, payload)
	if err != nil {
		return false, err
	}
	return qcrypto.VerifySignature(key.PubKey(), digest, signature), nil
}
