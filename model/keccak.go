package model

import (
	"strings"

	"golang.org/x/crypto/sha3"
)

// CutSignature is the signature of the router's built-in cut entry point.
const CutSignature = "diamondCut((address,uint8,bytes4[])[],address,bytes)"

// CutSelector is the selector of CutSignature (0x1f931c1c). It can never be
// removed; a Replace may move it to a new cut facet.
var CutSelector = SelectorOf(CutSignature)

// Keccak256 returns the legacy (pre-NIST) Keccak-256 digest of data.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		_, _ = h.Write(b)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// SelectorOf returns the first four bytes of keccak256(signature).
// Whitespace in the signature is ignored.
func SelectorOf(signature string) Selector {
	sum := Keccak256([]byte(strings.Join(strings.Fields(signature), "")))
	var s Selector
	copy(s[:], sum[:4])
	return s
}

// SelectorsOf maps SelectorOf over signatures, preserving order.
func SelectorsOf(signatures ...string) []Selector {
	out := make([]Selector, 0, len(signatures))
	for _, sig := range signatures {
		out = append(out, SelectorOf(sig))
	}
	return out
}

// RoleIDOf returns keccak256(name), the conventional id for a named role.
func RoleIDOf(name string) RoleID {
	return RoleID(Keccak256([]byte(name)))
}

// InterfaceID is the XOR of the given selectors (ERC-165).
func InterfaceID(selectors ...Selector) Selector {
	var id Selector
	for _, s := range selectors {
		for i := range id {
			id[i] ^= s[i]
		}
	}
	return id
}

// AddressOf returns the last 20 bytes of keccak256(parts...). Account
// addresses (from public keys) and facet addresses (from labels) are both
// derived this way.
func AddressOf(parts ...[]byte) Address {
	sum := Keccak256(parts...)
	var a Address
	copy(a[:], sum[12:])
	return a
}
