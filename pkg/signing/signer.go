// Package signing wraps ed25519 key handling for license issuance and
// verification. Issuance needs the private seed; validators only ever hold
// the public key.
package signing

import (
	"crypto/ed25519"

	"github.com/rflexhq/license-server/pkg/errors"
)

// Signer produces detached signatures over canonical license bytes.
type Signer interface {
	Sign(canonical []byte) []byte
	PublicKey() ed25519.PublicKey
}

type signer struct {
	priv ed25519.PrivateKey
}

// NewSigner validates the private key length up front so a misconfigured
// seed fails at boot rather than on the first issuance.
func NewSigner(priv ed25519.PrivateKey) (Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New(errors.CodeInternal, "signing private key must be 64 bytes")
	}
	return &signer{priv: priv}, nil
}

func (s *signer) Sign(canonical []byte) []byte {
	return ed25519.Sign(s.priv, canonical)
}

func (s *signer) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// Verify reports whether signature is a valid detached signature over
// canonical under pub. It is a pure predicate: malformed inputs simply
// verify false.
func Verify(pub ed25519.PublicKey, canonical, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, canonical, signature)
}
