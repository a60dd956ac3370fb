// Package pipeline implements the Q∞ step-chain executor (spec §4.2): an
// ordered run of capability-port-backed steps, each threading its output
// into the next, with hash verification between every step boundary.
package pipeline

import (
	"context"
	"fmt"

	"qinfinity/ports"

	"github.com/golang/snappy"
)

// StepName identifies one step of the forward or inverse pipeline.
type StepName string

const (
	StepCompress   StepName = "compress"
	StepEncrypt    StepName = "encrypt"
	StepIndex      StepName = "index"
	StepAudit      StepName = "audit"
	StepStore      StepName = "store"
	StepRetrieve   StepName = "retrieve"
	StepVerify     StepName = "verify"
	StepDecrypt    StepName = "decrypt"
	StepDecompress StepName = "decompress"
)

// StepInput is what a step consumes.
type StepInput struct {
	Data    []byte
	Options map[string]string
}

// StepOutput is what a step produces.
type StepOutput struct {
	Data     []byte
	Metadata map[string]string
}

// StepFunc implements one pipeline step.
type StepFunc func(ctx context.Context, in StepInput) (StepOutput, error)

// Step pairs a name with its implementation, so the executor can label
// durations and hashes per step.
type Step struct {
	Name StepName
	Fn   StepFunc
}

// Ports bundles the capability ports the built-in step set is wired to.
type Ports struct {
	Crypto    ports.CryptoPort
	Storage   ports.ContentStoragePort
	Index     ports.IndexPort
	Audit     ports.AuditPort
	Actor     string // identity attributed to audit log entries and signatures.
	Namespace string
}

// ForwardSteps returns the canonical forward pipeline: compress, encrypt,
// index, audit, store.
func ForwardSteps(p Ports) []Step {
	return []Step{
		{Name: StepCompress, Fn: compressStep},
		{Name: StepEncrypt, Fn: encryptStep(p)},
		{Name: StepIndex, Fn: indexStep(p)},
		{Name: StepAudit, Fn: auditStep(p)},
		{Name: StepStore, Fn: storeStep(p)},
	}
}

// InverseSteps returns the canonical inverse pipeline: retrieve, verify,
// decrypt, decompress. contentAddress identifies the blob to retrieve.
func InverseSteps(p Ports, contentAddress string) []Step {
	return []Step{
		{Name: StepRetrieve, Fn: retrieveStep(p, contentAddress)},
		{Name: StepVerify, Fn: verifyStep(p)},
		{Name: StepDecrypt, Fn: decryptStep(p)},
		{Name: StepDecompress, Fn: decompressStep},
	}
}

func compressStep(_ context.Context, in StepInput) (StepOutput, error) {
	compressed := snappy.Encode(nil, in.Data)
	return StepOutput{Data: compressed, Metadata: map[string]string{"codec": "snappy"}}, nil
}

func decompressStep(_ context.Context, in StepInput) (StepOutput, error) {
	decompressed, err := snappy.Decode(nil, in.Data)
	if err != nil {
		return StepOutput{}, fmt.Errorf("pipeline: decompress: %w", err)
	}
	return StepOutput{Data: decompressed}, nil
}

func encryptStep(p Ports) StepFunc {
	return func(ctx context.Context, in StepInput) (StepOutput, error) {
		level := ports.EncryptionLevelStandard
		if in.Options != nil && in.Options["encryption_level"] == string(ports.EncryptionLevelHigh) {
			level = ports.EncryptionLevelHigh
		}
		ciphertext, metadata, err := p.Crypto.Encrypt(ctx, in.Data, level)
		if err != nil {
			return StepOutput{}, fmt.Errorf("pipeline: encrypt: %w", err)
		}
		return StepOutput{Data: ciphertext, Metadata: map[string]string{"crypto_metadata": string(metadata)}}, nil
	}
}

func decryptStep(p Ports) StepFunc {
	return func(ctx context.Context, in StepInput) (StepOutput, error) {
		metadata := []byte(in.Options["crypto_metadata"])
		plaintext, err := p.Crypto.Decrypt(ctx, in.Data, metadata)
		if err != nil {
			return StepOutput{}, fmt.Errorf("pipeline: decrypt: %w", err)
		}
		return StepOutput{Data: plaintext}, nil
	}
}

func indexStep(p Ports) StepFunc {
	return func(ctx context.Context, in StepInput) (StepOutput, error) {
		// Indexing is descriptive; it passes data through unchanged and
		// records no new content address until the store step runs.
		return StepOutput{Data: in.Data, Metadata: map[string]string{"indexed": "pending-content-address"}}, nil
	}
}

func auditStep(p Ports) StepFunc {
	return func(ctx context.Context, in StepInput) (StepOutput, error) {
		if err := p.Audit.LogEvent(ctx, p.Actor, "pipeline.step.audit", map[string]string{"namespace": p.Namespace}); err != nil {
			return StepOutput{}, fmt.Errorf("pipeline: audit: %w", err)
		}
		return StepOutput{Data: in.Data}, nil
	}
}

func storeStep(p Ports) StepFunc {
	return func(ctx context.Context, in StepInput) (StepOutput, error) {
		name := in.Options["name"]
		contentAddress, err := p.Storage.Put(ctx, in.Data, name, p.Namespace)
		if err != nil {
			return StepOutput{}, fmt.Errorf("pipeline: store: %w", err)
		}
		if err := p.Index.Register(ctx, ports.ContentDescriptor{
			ContentAddress: contentAddress,
			SizeBytes:      int64(len(in.Data)),
			Namespace:      p.Namespace,
			Name:           name,
		}); err != nil {
			return StepOutput{}, fmt.Errorf("pipeline: store: register index: %w", err)
		}
		return StepOutput{Data: in.Data, Metadata: map[string]string{"content_address": contentAddress}}, nil
	}
}

func retrieveStep(p Ports, contentAddress string) StepFunc {
	return func(ctx context.Context, _ StepInput) (StepOutput, error) {
		data, err := p.Storage.Get(ctx, contentAddress)
		if err != nil {
			return StepOutput{}, fmt.Errorf("pipeline: retrieve: %w", err)
		}
		return StepOutput{Data: data, Metadata: map[string]string{"content_address": contentAddress}}, nil
	}
}

func verifyStep(p Ports) StepFunc {
	return func(ctx context.Context, in StepInput) (StepOutput, error) {
		expected := in.Options["expected_hash"]
		if expected == "" {
			return StepOutput{Data: in.Data}, nil
		}
		digest, err := p.Crypto.Hash(ctx, in.Data)
		if err != nil {
			return StepOutput{}, fmt.Errorf("pipeline: verify: %w", err)
		}
		if fmt.Sprintf("%x", digest) != expected {
			return StepOutput{}, fmt.Errorf("pipeline: verify: hash mismatch")
		}
		return StepOutput{Data: in.Data}, nil
	}
}
