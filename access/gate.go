// Package access implements the router's role-based authorization store.
//
// Every role has exactly one admin role; holding the admin role is what
// allows granting and revoking the role. Unconfigured roles are administered
// by model.RoleOwner, which administers itself. Admin resolution is a single
// map lookup and never walks a chain.
package access

import (
	"bytes"
	"sort"

	"github.com/samber/lo"

	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/model"
)

type roleRecord struct {
	admin    model.RoleID
	hasAdmin bool
	members  map[model.Address]struct{}
}

// Gate is the role store. It is not safe for concurrent use.
type Gate struct {
	roles map[model.RoleID]*roleRecord
	emit  func(events.Event)
}

// Option configures a Gate.
type Option func(*Gate)

// WithEmitter sets the function receiving role events. It is called once per
// effective change, synchronously, while the change is being made.
func WithEmitter(fn func(events.Event)) Option {
	return func(g *Gate) { g.emit = fn }
}

// New returns a gate in which root holds model.RoleOwner and model.RoleManager
// is administered by model.RoleOwner. The initial grant emits no event; the
// caller records genesis itself.
func New(root model.Address, opts ...Option) *Gate {
	g := &Gate{roles: make(map[model.RoleID]*roleRecord), emit: func(events.Event) {}}
	for _, o := range opts {
		o(g)
	}
	g.record(model.RoleManager).setAdmin(model.RoleOwner)
	g.record(model.RoleOwner).members[root] = struct{}{}
	return g
}

func (g *Gate) record(role model.RoleID) *roleRecord {
	r, ok := g.roles[role]
	if !ok {
		r = &roleRecord{members: make(map[model.Address]struct{})}
		g.roles[role] = r
	}
	return r
}

func (r *roleRecord) setAdmin(admin model.RoleID) {
	r.admin = admin
	r.hasAdmin = true
}

// HasRole reports whether account holds role.
func (g *Gate) HasRole(role model.RoleID, account model.Address) bool {
	r, ok := g.roles[role]
	if !ok {
		return false
	}
	_, ok = r.members[account]
	return ok
}

// RoleAdmin returns the admin role of role.
func (g *Gate) RoleAdmin(role model.RoleID) model.RoleID {
	if r, ok := g.roles[role]; ok && r.hasAdmin {
		return r.admin
	}
	return model.RoleOwner
}

// Require returns Unauthorized unless account holds role.
func (g *Gate) Require(role model.RoleID, account model.Address) error {
	if g.HasRole(role, account) {
		return nil
	}
	return model.NewError(model.CodeUnauthorized, "account is missing role").
		WithRole(role).WithAccount(account)
}

// Grant adds account to role. caller must hold RoleAdmin(role). Granting a
// role that is already held changes nothing and emits nothing.
func (g *Gate) Grant(caller model.Address, role model.RoleID, account model.Address) error {
	if err := g.Require(g.RoleAdmin(role), caller); err != nil {
		return err
	}
	if g.HasRole(role, account) {
		return nil
	}
	g.record(role).members[account] = struct{}{}
	g.emit(events.NewRoleChanged(events.RoleChanged{Role: role, Account: account, Sender: caller, Change: events.Granted}))
	return nil
}

// Revoke removes account from role. caller must hold RoleAdmin(role).
func (g *Gate) Revoke(caller model.Address, role model.RoleID, account model.Address) error {
	if err := g.Require(g.RoleAdmin(role), caller); err != nil {
		return err
	}
	if !g.HasRole(role, account) {
		return nil
	}
	delete(g.roles[role].members, account)
	g.emit(events.NewRoleChanged(events.RoleChanged{Role: role, Account: account, Sender: caller, Change: events.Revoked}))
	return nil
}

// Renounce removes caller's own membership of role. account must equal
// caller, whatever roles caller holds.
func (g *Gate) Renounce(caller model.Address, role model.RoleID, account model.Address) error {
	if caller != account {
		return model.NewError(model.CodeSelfRenounceOnly, "can only renounce roles for self").
			WithRole(role).WithAccount(account)
	}
	if !g.HasRole(role, account) {
		return nil
	}
	delete(g.roles[role].members, account)
	g.emit(events.NewRoleChanged(events.RoleChanged{Role: role, Account: account, Sender: caller, Change: events.Renounced}))
	return nil
}

// SetRoleAdmin makes admin the admin role of role. caller must hold the
// current admin. Only model.RoleOwner may administer itself.
func (g *Gate) SetRoleAdmin(caller model.Address, role, admin model.RoleID) error {
	prev := g.RoleAdmin(role)
	if err := g.Require(prev, caller); err != nil {
		return err
	}
	if role == admin && role != model.RoleOwner {
		return model.NewError(model.CodeInvalidRoleAdmin, "only the root role may administer itself").WithRole(role)
	}
	if role == model.RoleOwner && admin != model.RoleOwner {
		return model.NewError(model.CodeInvalidRoleAdmin, "the root role must administer itself").WithRole(role)
	}
	if prev == admin {
		return nil
	}
	g.record(role).setAdmin(admin)
	g.emit(events.NewRoleAdminChanged(events.RoleAdminChanged{Role: role, Previous: prev, New: admin}))
	return nil
}

// Members returns role's members sorted by address.
func (g *Gate) Members(role model.RoleID) []model.Address {
	r, ok := g.roles[role]
	if !ok {
		return nil
	}
	out := lo.Keys(r.members)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Roles returns every role that has a record, sorted.
func (g *Gate) Roles() []model.RoleID {
	out := lo.Keys(g.roles)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Clone returns a deep copy that shares the emitter.
func (g *Gate) Clone() *Gate {
	out := &Gate{roles: make(map[model.RoleID]*roleRecord, len(g.roles)), emit: g.emit}
	for id, r := range g.roles {
		cp := &roleRecord{admin: r.admin, hasAdmin: r.hasAdmin, members: make(map[model.Address]struct{}, len(r.members))}
		for a := range r.members {
			cp.members[a] = struct{}{}
		}
		out.roles[id] = cp
	}
	return out
}
