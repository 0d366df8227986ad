package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"xdao.co/facetrouter/model"
)

// Signature algorithms.
const (
	// AlgEd25519 signs sha256(message) with Ed25519.
	AlgEd25519 = "ed25519"
	// AlgDilithium3 signs sha3-256(message) with Dilithium3.
	AlgDilithium3 = "dilithium3"
)

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

func hashFor(alg string) (string, error) {
	switch alg {
	case AlgEd25519:
		return "sha256", nil
	case AlgDilithium3:
		return "sha3-256", nil
	default:
		return "", fmt.Errorf("unsupported signature algorithm: %q", alg)
	}
}

// Signer signs request bodies on behalf of one account.
type Signer interface {
	Alg() string
	PublicKey() []byte
	Sign(message []byte) ([]byte, error)
}

// AddressFromPublicKey returns the router address of a public key.
func AddressFromPublicKey(pub []byte) model.Address { return model.AddressOf(pub) }

// AddressOf returns the router address of s.
func AddressOf(s Signer) model.Address { return AddressFromPublicKey(s.PublicKey()) }

// Ed25519Signer signs with an Ed25519 key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

// NewEd25519Signer builds a signer from a 32-byte seed.
func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) Alg() string { return AlgEd25519 }

func (s *Ed25519Signer) PublicKey() []byte {
	return append([]byte(nil), s.priv.Public().(ed25519.PublicKey)...)
}

func (s *Ed25519Signer) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ed25519.Sign(s.priv, digest[:]), nil
}

// Dilithium3Signer signs with a Dilithium3 key.
type Dilithium3Signer struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

// NewDilithium3Signer derives a Dilithium3 key from a 32-byte seed.
func NewDilithium3Signer(seed []byte) (*Dilithium3Signer, error) {
	var s [32]byte
	if len(seed) != len(s) {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", len(s), len(seed))
	}
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

// GenerateDilithium3Signer returns a signer with a fresh Dilithium3 keypair.
func GenerateDilithium3Signer(rand io.Reader) (*Dilithium3Signer, error) {
	pub, priv, err := mode3.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

func (s *Dilithium3Signer) Alg() string { return AlgDilithium3 }

func (s *Dilithium3Signer) PublicKey() []byte {
	b, _ := s.pub.MarshalBinary()
	return b
}

func (s *Dilithium3Signer) Sign(message []byte) ([]byte, error) {
	digest, err := digestFor("sha3-256", message)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, digest, sig)
	return sig, nil
}

// Verify checks sig over message for the public key pub under alg.
func Verify(alg string, pub, message, sig []byte) error {
	hashAlg, err := hashFor(alg)
	if err != nil {
		return err
	}
	digest, err := digestFor(hashAlg, message)
	if err != nil {
		return err
	}
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("invalid ed25519 public key length %d", len(pub))
		}
		if len(sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return ErrBadSignature
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		if len(sig) != mode3.SignatureSize || !mode3.Verify(&pk, digest, sig) {
			return ErrBadSignature
		}
	}
	return nil
}
