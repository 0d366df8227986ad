// Package events defines the router's audit events and the journal that
// persists them.
package events

import (
	"context"
	"fmt"
	"sync"

	"xdao.co/facetrouter/model"
)

// Kind discriminates Event.
type Kind string

const (
	KindCutApplied       Kind = "CutApplied"
	KindRoleChanged      Kind = "RoleChanged"
	KindRoleAdminChanged Kind = "RoleAdminChanged"
)

// Change is the membership transition recorded by RoleChanged.
type Change uint8

const (
	Granted Change = iota + 1
	Revoked
	Renounced
)

func (c Change) String() string {
	switch c {
	case Granted:
		return "granted"
	case Revoked:
		return "revoked"
	case Renounced:
		return "renounced"
	default:
		return fmt.Sprintf("Change(%d)", uint8(c))
	}
}

// CutApplied describes one committed cut batch.
type CutApplied struct {
	Cuts    []model.FacetCut `cbor:"1,keyasint" json:"cuts"`
	Init    model.Address    `cbor:"2,keyasint" json:"init"`
	Payload []byte           `cbor:"3,keyasint,omitempty" json:"payload,omitempty"`
}

// RoleChanged records a grant, revoke or renounce. For Renounced, Sender
// equals Account.
type RoleChanged struct {
	Role    model.RoleID  `cbor:"1,keyasint" json:"role"`
	Account model.Address `cbor:"2,keyasint" json:"account"`
	Sender  model.Address `cbor:"3,keyasint" json:"sender"`
	Change  Change        `cbor:"4,keyasint" json:"change"`
}

// RoleAdminChanged records a change of a role's admin role.
type RoleAdminChanged struct {
	Role     model.RoleID `cbor:"1,keyasint" json:"role"`
	Previous model.RoleID `cbor:"2,keyasint" json:"previous"`
	New      model.RoleID `cbor:"3,keyasint" json:"new"`
}

// Event is a tagged union; exactly one payload field is set, matching Kind.
type Event struct {
	Kind      Kind              `cbor:"1,keyasint" json:"kind"`
	Cut       *CutApplied       `cbor:"2,keyasint,omitempty" json:"cut,omitempty"`
	Role      *RoleChanged      `cbor:"3,keyasint,omitempty" json:"role,omitempty"`
	RoleAdmin *RoleAdminChanged `cbor:"4,keyasint,omitempty" json:"roleAdmin,omitempty"`
}

func NewCutApplied(c CutApplied) Event { return Event{Kind: KindCutApplied, Cut: &c} }

func NewRoleChanged(r RoleChanged) Event { return Event{Kind: KindRoleChanged, Role: &r} }

func NewRoleAdminChanged(r RoleAdminChanged) Event {
	return Event{Kind: KindRoleAdminChanged, RoleAdmin: &r}
}

// Validate checks that the payload matches Kind.
func (e Event) Validate() error {
	var ok bool
	switch e.Kind {
	case KindCutApplied:
		ok = e.Cut != nil && e.Role == nil && e.RoleAdmin == nil
	case KindRoleChanged:
		ok = e.Role != nil && e.Cut == nil && e.RoleAdmin == nil
	case KindRoleAdminChanged:
		ok = e.RoleAdmin != nil && e.Cut == nil && e.Role == nil
	default:
		return fmt.Errorf("events: unknown kind %q", e.Kind)
	}
	if !ok {
		return fmt.Errorf("events: payload does not match kind %q", e.Kind)
	}
	return nil
}

// Sink receives the events of one committed operation as a single batch.
// A Sink error means the batch was not recorded.
type Sink interface {
	Publish(ctx context.Context, batch []Event) error
}

// Discard drops every batch.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(context.Context, []Event) error { return nil }

// Recorder keeps published batches in memory.
type Recorder struct {
	mu      sync.Mutex
	batches [][]Event
}

func (r *Recorder) Publish(_ context.Context, batch []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]Event(nil), batch...))
	return nil
}

// Batches returns a copy of every batch published so far.
func (r *Recorder) Batches() [][]Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]Event, len(r.batches))
	for i, b := range r.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

// Events returns every published event in order, flattened.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}
