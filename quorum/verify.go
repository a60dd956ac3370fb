package quorum

import (
	"context"

	"qinfinity/ports"
)

// VerifyVote checks a vote's signature against payload via the identity
// capability, mirroring the teacher's verifySignedVote/verifySignedProposal
// pair but delegating the scheme-specific cryptography to IdentityPort
// instead of hand-rolling secp256k1/ed25519 dispatch inline.
func VerifyVote(ctx context.Context, identity ports.IdentityPort, vote Vote, payload []byte) (bool, error) {
	return identity.VerifySignature(ctx, vote.NodeID, payload, vote.Signature)
}
