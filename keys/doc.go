// Package keys manages the account keys that sign router requests.
//
// An account's router address is the last 20 bytes of keccak256 over its
// public key. Ed25519 keys are derived from 32-byte seeds, optionally per
// role from a root seed, and kept in a filesystem KeyStore. Dilithium3 keys
// are supported for signing and verification.
package keys
