package router

import (
	"context"

	"go.uber.org/zap"

	"xdao.co/facetrouter/access"
	"xdao.co/facetrouter/model"
)

// HasRole reports whether account holds role.
func (r *Router) HasRole(role model.RoleID, account model.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gate.HasRole(role, account)
}

// GetRoleAdmin returns the admin role of role.
func (r *Router) GetRoleAdmin(role model.RoleID) model.RoleID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gate.RoleAdmin(role)
}

// Members returns the sorted members of role.
func (r *Router) Members(role model.RoleID) []model.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gate.Members(role)
}

// GrantRole grants role to account on behalf of caller.
func (r *Router) GrantRole(ctx context.Context, caller model.Address, role model.RoleID, account model.Address) error {
	return r.changeRoles(ctx, "grantRole", func(g *access.Gate) error { return g.Grant(caller, role, account) },
		zap.Stringer("role", role), zap.Stringer("account", account))
}

// RevokeRole revokes role from account on behalf of caller.
func (r *Router) RevokeRole(ctx context.Context, caller model.Address, role model.RoleID, account model.Address) error {
	return r.changeRoles(ctx, "revokeRole", func(g *access.Gate) error { return g.Revoke(caller, role, account) },
		zap.Stringer("role", role), zap.Stringer("account", account))
}

// RenounceRole drops caller's own membership of role. account must be caller.
func (r *Router) RenounceRole(ctx context.Context, caller model.Address, role model.RoleID, account model.Address) error {
	return r.changeRoles(ctx, "renounceRole", func(g *access.Gate) error { return g.Renounce(caller, role, account) },
		zap.Stringer("role", role), zap.Stringer("account", account))
}

// SetRoleAdmin changes the admin role of role on behalf of caller.
func (r *Router) SetRoleAdmin(ctx context.Context, caller model.Address, role, admin model.RoleID) error {
	return r.changeRoles(ctx, "setRoleAdmin", func(g *access.Gate) error { return g.SetRoleAdmin(caller, role, admin) },
		zap.Stringer("role", role), zap.Stringer("admin", admin))
}

func (r *Router) changeRoles(ctx context.Context, name string, fn func(*access.Gate) error, fields ...zap.Field) error {
	return r.mutate(ctx, name, func(context.Context, *operation) error {
		r.mu.RLock()
		next := r.gate.Clone()
		r.mu.RUnlock()

		mark := len(r.pending)
		if err := fn(next); err != nil {
			r.pending = r.pending[:mark]
			return err
		}
		r.mu.Lock()
		r.gate = next
		r.mu.Unlock()
		if len(r.pending) > mark {
			r.log.Info(name, fields...)
		}
		return nil
	})
}
