package service

import (
	"context"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/database"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/metrics"
)

// RoleResolver looks up the caller's role from the database on every call.
// Roles are never taken from token claims.
type RoleResolver struct {
	caps     CapsSource
	users    UserStore
	fallback domain.Role
	logger   *logger.Logger
}

// NewRoleResolver creates a resolver. fallback is used while the role
// column is missing; an invalid value means MEMBER.
func NewRoleResolver(caps CapsSource, users UserStore, fallback domain.Role, log *logger.Logger) *RoleResolver {
	if !fallback.Valid() {
		fallback = domain.RoleMember
	}
	return &RoleResolver{
		caps:     caps,
		users:    users,
		fallback: fallback,
		logger:   log,
	}
}

// Resolve returns the caller's role. A caller that does not exist in its
// tenant gets NotFound.
func (r *RoleResolver) Resolve(ctx context.Context, caller *actor.Actor) (domain.Role, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}

	caps, err := r.caps.Caps(ctx)
	if err != nil {
		return "", err
	}
	if !caps.HasUserRole {
		return r.useFallback(caller, "role column missing"), nil
	}

	role, err := r.users.Role(ctx, caller.TenantID, caller.ID)
	if err != nil {
		if database.IsSchemaDrift(err) {
			r.logger.Warn().Err(err).Msg("role lookup hit schema drift")
			return r.useFallback(caller, "schema drift"), nil
		}
		return "", err
	}
	if !role.Valid() {
		return r.useFallback(caller, "unknown stored role"), nil
	}
	return role, nil
}

// RequireAtLeast resolves the caller's role and rejects it when below min.
func (r *RoleResolver) RequireAtLeast(ctx context.Context, caller *actor.Actor, min domain.Role) (domain.Role, error) {
	role, err := r.Resolve(ctx, caller)
	if err != nil {
		return "", err
	}
	if !role.AtLeast(min) {
		return role, errors.Forbidden("requires " + string(min) + " role or higher")
	}
	return role, nil
}

// RequirePermission resolves the caller's role and checks one permission.
func (r *RoleResolver) RequirePermission(ctx context.Context, caller *actor.Actor, permission string) (domain.Role, error) {
	role, err := r.Resolve(ctx, caller)
	if err != nil {
		return "", err
	}
	if !role.Can(permission) {
		return role, errors.Forbidden("missing permission " + permission)
	}
	return role, nil
}

func (r *RoleResolver) useFallback(caller *actor.Actor, reason string) domain.Role {
	metrics.RoleFallbackTotal.Inc()
	r.logger.Debug().
		Str("user_id", caller.ID).
		Str("reason", reason).
		Str("role", string(r.fallback)).
		Msg("using fallback role")
	return r.fallback
}
