// Package signing gives the delivery-outcome audit trail (internal/streaming)
// the same tamper-evident signing the teacher gives its own audit log.
// Adapted from kernel/internal/signer/signer.go — same Signer interface and
// LocalSigner implementation, the KMS-backed variant is dropped (see
// DESIGN.md).
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
)

// Signer signs a content hash and identifies itself for verification.
type Signer interface {
	// Sign signs hash and returns (signature, signerId, error).
	Sign(hash []byte) (sig []byte, signerID string, err error)

	// PublicKey returns the verification key, or nil if unsupported.
	PublicKey() []byte
}

// LocalSigner is an in-process Ed25519 signer. The relay has no external
// KMS dependency, so this is the only Signer implementation — unlike the
// kernel, which offers this purely as a development fallback.
type LocalSigner struct {
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
	signerID string
}

// NewLocalSigner generates a fresh random Ed25519 keypair and returns a
// signer that identifies itself as signerID (e.g. the process hostname or
// a config value) in every signature it produces. The key does not
// survive a restart; use NewLocalSignerFromSeed when the audit trail
// needs to stay verifiable across process lifetimes.
func NewLocalSigner(signerID string) *LocalSigner {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return &LocalSigner{priv: priv, pub: pub, signerID: signerID}
}

// NewLocalSignerFromSeed derives a deterministic Ed25519 keypair from an
// operator-supplied secret (e.g. the SIGNING_KEY_SEED config value), so
// the same public key can be recovered out of band to verify the audit
// chain with internal/streaming.VerifyChain after a restart.
func NewLocalSignerFromSeed(signerID, seed string) *LocalSigner {
	h := sha256.Sum256([]byte(seed))
	pub, priv, err := ed25519.GenerateKey(io.Reader(newSeedReader(h[:])))
	if err != nil {
		panic(err)
	}
	return &LocalSigner{priv: priv, pub: pub, signerID: signerID}
}

// seedReader repeats a fixed seed so ed25519.GenerateKey (which reads
// exactly ed25519.SeedSize bytes) is deterministic for a given input.
type seedReader struct{ seed []byte }

func newSeedReader(seed []byte) *seedReader { return &seedReader{seed: seed} }

func (r *seedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.seed[i%len(r.seed)]
	}
	return len(p), nil
}

func (l *LocalSigner) Sign(hash []byte) ([]byte, string, error) {
	if l.priv == nil {
		return nil, "", errors.New("signing: local signer not initialized")
	}
	return ed25519.Sign(l.priv, hash), l.signerID, nil
}

func (l *LocalSigner) PublicKey() []byte {
	return l.pub
}

var _ Signer = (*LocalSigner)(nil)
