package rpc

import (
	"bytes"
	"errors"
	"sync"

	"xdao.co/facetrouter/codec"
	"xdao.co/facetrouter/keys"
	"xdao.co/facetrouter/model"
)

const envelopeDomain = "xdao.facetrouter/rpc/v1"

var (
	ErrBadEnvelope  = errors.New("rpc: malformed envelope")
	ErrStaleNonce   = errors.New("rpc: nonce already used")
	ErrMissingNonce = errors.New("rpc: nonce must be positive")
	// ErrUnknownSession means the envelope was sealed for another server
	// instance, e.g. before a restart. Clients fetch the session again.
	ErrUnknownSession = errors.New("rpc: unknown session")
)

// Envelope carries a signed request body. The signer's address is the caller
// the router sees.
type Envelope struct {
	PublicKey []byte `cbor:"1,keyasint"`
	Alg       string `cbor:"2,keyasint"`
	Nonce     uint64 `cbor:"3,keyasint"`
	Body      []byte `cbor:"4,keyasint"`
	Signature []byte `cbor:"5,keyasint"`
	Session   []byte `cbor:"6,keyasint"`
}

type signedPayload struct {
	_      struct{} `cbor:",toarray"`
	Domain  string
	Session []byte
	Method  string
	Nonce  uint64
	Body   []byte
}

// SigningBytes returns the bytes an envelope signature covers. The session
// ties a signature to one server instance and the method name to one method.
func SigningBytes(session []byte, method string, nonce uint64, body []byte) ([]byte, error) {
	return codec.Marshal(signedPayload{Domain: envelopeDomain, Session: session, Method: method, Nonce: nonce, Body: body})
}

// Seal signs body for method on the server session with signer.
func Seal(signer keys.Signer, session []byte, method string, nonce uint64, body []byte) (Envelope, error) {
	msg, err := SigningBytes(session, method, nonce, body)
	if err != nil {
		return Envelope{}, err
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		PublicKey: signer.PublicKey(),
		Alg:       signer.Alg(),
		Nonce:     nonce,
		Body:      body,
		Signature: sig,
		Session:   append([]byte(nil), session...),
	}, nil
}

// Open verifies env for method on session and returns the signer's address.
func (env Envelope) Open(session []byte, method string) (model.Address, error) {
	if len(env.PublicKey) == 0 || len(env.Signature) == 0 || env.Alg == "" {
		return model.Address{}, ErrBadEnvelope
	}
	if !bytes.Equal(env.Session, session) {
		return model.Address{}, ErrUnknownSession
	}
	if env.Nonce == 0 {
		return model.Address{}, ErrMissingNonce
	}
	msg, err := SigningBytes(session, method, env.Nonce, env.Body)
	if err != nil {
		return model.Address{}, err
	}
	if err := keys.Verify(env.Alg, env.PublicKey, msg, env.Signature); err != nil {
		return model.Address{}, err
	}
	return keys.AddressFromPublicKey(env.PublicKey), nil
}

// nonceBook remembers the highest nonce accepted per caller. Nonces must
// strictly increase.
type nonceBook struct {
	mu   sync.Mutex
	last map[model.Address]uint64
}

func (b *nonceBook) accept(caller model.Address, nonce uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		b.last = make(map[model.Address]uint64)
	}
	if nonce <= b.last[caller] {
		return ErrStaleNonce
	}
	b.last[caller] = nonce
	return nil
}
