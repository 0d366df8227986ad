package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// ErrBadSignature is returned by Verify when a signature does not match.
var ErrBadSignature = errors.New("keys: signature invalid")

// PublicKeyString encodes a public key as "<alg>:" + base64(pub).
func PublicKeyString(alg string, pub []byte) string {
	return alg + ":" + base64.StdEncoding.EncodeToString(pub)
}

// ParsePublicKey decodes a PublicKeyString value and checks the key size.
func ParsePublicKey(s string) (alg string, pub []byte, err error) {
	alg, enc, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", nil, fmt.Errorf("public key %q is missing the algorithm prefix", s)
	}
	pub, err = base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", nil, fmt.Errorf("invalid public key base64: %w", err)
	}
	switch alg {
	case AlgEd25519:
		if l := len(pub); l != ed25519.PublicKeySize {
			return "", nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return "", nil, fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("unsupported public key algorithm %q", alg)
	}
	return alg, pub, nil
}
