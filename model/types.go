package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Selector is the 4-byte routing key identifying a function signature.
type Selector [4]byte

// Address identifies a facet or an account. The zero value is the null address.
type Address [20]byte

// RoleID is an opaque 32-byte role identifier. The zero value is the root role.
type RoleID [32]byte

var (
	// RoleOwner is the self-administering root role granted to the deployer.
	RoleOwner = RoleID{}
	// RoleManager is administered by RoleOwner unless changed.
	RoleManager = RoleID{31: 0x01}
)

func (s Selector) String() string { return "0x" + hex.EncodeToString(s[:]) }
func (a Address) String() string  { return "0x" + hex.EncodeToString(a[:]) }
func (r RoleID) String() string   { return "0x" + hex.EncodeToString(r[:]) }

func (a Address) IsZero() bool { return a == Address{} }

func (s Selector) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (a Address) MarshalText() ([]byte, error)  { return []byte(a.String()), nil }
func (r RoleID) MarshalText() ([]byte, error)   { return []byte(r.String()), nil }

func (s *Selector) UnmarshalText(b []byte) error {
	v, err := ParseSelector(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (a *Address) UnmarshalText(b []byte) error {
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (r *RoleID) UnmarshalText(b []byte) error {
	v, err := ParseRoleID(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseSelector parses a 0x-prefixed (or bare) 8 hex digit selector.
func ParseSelector(s string) (Selector, error) {
	var out Selector
	if err := decodeFixed(s, out[:], "selector"); err != nil {
		return Selector{}, err
	}
	return out, nil
}

// ParseAddress parses a 0x-prefixed (or bare) 40 hex digit address.
func ParseAddress(s string) (Address, error) {
	var out Address
	if err := decodeFixed(s, out[:], "address"); err != nil {
		return Address{}, err
	}
	return out, nil
}

// ParseRoleID parses a 0x-prefixed (or bare) 64 hex digit role id.
func ParseRoleID(s string) (RoleID, error) {
	var out RoleID
	if err := decodeFixed(s, out[:], "role id"); err != nil {
		return RoleID{}, err
	}
	return out, nil
}

func decodeFixed(s string, dst []byte, what string) error {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*len(dst) {
		return fmt.Errorf("%s must be %d hex chars, got %d", what, 2*len(dst), len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("invalid %s hex: %w", what, err)
	}
	return nil
}

// Action is the kind of change a FacetCut applies.
type Action uint8

const (
	Add Action = iota
	Replace
	Remove
)

func (a Action) String() string {
	switch a {
	case Add:
		return "Add"
	case Replace:
		return "Replace"
	case Remove:
		return "Remove"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Valid reports whether a is one of Add, Replace, Remove.
func (a Action) Valid() bool { return a <= Remove }

// FacetCut is one directive of a cut batch.
//
// Remove directives must carry the null FacetAddress.
type FacetCut struct {
	FacetAddress      Address    `json:"facetAddress" yaml:"facetAddress" cbor:"1,keyasint"`
	Action            Action     `json:"action" yaml:"action" cbor:"2,keyasint"`
	FunctionSelectors []Selector `json:"functionSelectors" yaml:"functionSelectors" cbor:"3,keyasint"`
}

// Facet is the loupe view of one facet: its address and its current selectors.
type Facet struct {
	FacetAddress      Address    `json:"facetAddress" cbor:"1,keyasint"`
	FunctionSelectors []Selector `json:"functionSelectors" cbor:"2,keyasint"`
}
