package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// mockSignaturePrefix is the fixed trust-bypass format accepted only in
// sandbox mode (Open Question Q1): a signature equal to
// "mock_signature_<identity>" is treated as valid without touching the
// CryptoPort, letting demo runs and tests exercise vote/vote-like flows
// without standing up real key material for every participant.
const mockSignaturePrefix = "mock_signature_"

// IdentityPort is an in-memory IdentityPort backed by group membership maps,
// grounded on the teacher's role/allowlist bookkeeping in
// native/governance (SetRole/RemoveRole over a map[string]struct{}).
type IdentityPort struct {
	mu         sync.RWMutex
	members    map[string]map[string]struct{} // group -> identity -> struct{}
	crypto     *CryptoPort
	sandboxOn  bool
	descriptor map[string]string
}

// NewIdentityPort constructs a sandbox IdentityPort. When sandboxMode is
// true, VerifySignature accepts the fixed mock signature format in addition
// to delegating to crypto for real signatures; when false, only real
// signatures verify.
func NewIdentityPort(crypto *CryptoPort, sandboxMode bool) *IdentityPort {
	return &IdentityPort{
		members:    make(map[string]map[string]struct{}),
		crypto:     crypto,
		sandboxOn:  sandboxMode,
		descriptor: make(map[string]string),
	}
}

// AddMember registers identity as a member of group.
func (p *IdentityPort) AddMember(group, identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.members[group] == nil {
		p.members[group] = make(map[string]struct{})
	}
	p.members[group][identity] = struct{}{}
}

// SetDescriptor registers a human-readable descriptor for identity.
func (p *IdentityPort) SetDescriptor(identity, descriptor string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.descriptor[identity] = descriptor
}

// IsMember implements ports.IdentityPort.
func (p *IdentityPort) IsMember(_ context.Context, identity, group string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	members, ok := p.members[group]
	if !ok {
		return false, nil
	}
	_, isMember := members[identity]
	return isMember, nil
}

// Descriptor implements ports.IdentityPort.
func (p *IdentityPort) Descriptor(_ context.Context, identity string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if d, ok := p.descriptor[identity]; ok {
		return d, nil
	}
	return identity, nil
}

// VerifySignature implements ports.IdentityPort.
func (p *IdentityPort) VerifySignature(ctx context.Context, identity string, payload, signature []byte) (bool, error) {
	if p.sandboxOn && strings.HasPrefix(string(signature), mockSignaturePrefix) {
		expected := mockSignaturePrefix + identity
		return string(signature) == expected, nil
	}
	if p.crypto == nil {
		return false, fmt.Errorf("sandbox identity: no crypto port configured for real verification")
	}
	return p.crypto.Verify(ctx, payload, signature, identity)
}

// MockSignature builds the fixed sandbox trust-bypass signature for an
// identity, for use by tests and the demo orchestrator.
func MockSignature(identity string) []byte {
	return []byte(mockSignaturePrefix + identity)
}
