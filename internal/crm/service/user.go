package service

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
)

// UserService manages the users of a tenant
type UserService struct {
	caps      CapsSource
	tx        TxRunner
	roles     *RoleResolver
	users     UserStore
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewUserService creates a new user service
func NewUserService(
	caps CapsSource,
	tx TxRunner,
	roles *RoleResolver,
	users UserStore,
	publisher messaging.EventPublisher,
	log *logger.Logger,
) *UserService {
	return &UserService{
		caps:      caps,
		tx:        tx,
		roles:     roles,
		users:     users,
		publisher: orNop(publisher),
		logger:    log.WithComponent("users"),
	}
}

// List returns the tenant's users. Requires ADMIN.
func (s *UserService) List(ctx context.Context, caller *actor.Actor) ([]domain.User, error) {
	if _, err := s.roles.RequireAtLeast(ctx, caller, domain.RoleAdmin); err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx, caps, caller.TenantID)
	if err != nil {
		return nil, err
	}
	if !caps.HasUserRole {
		for i := range users {
			users[i].Role = domain.RoleMember
		}
	}
	return users, nil
}

// Me returns the caller with their resolved role.
func (s *UserService) Me(ctx context.Context, caller *actor.Actor) (*domain.User, error) {
	role, err := s.roles.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, caps, caller.TenantID, caller.ID)
	if err != nil {
		return nil, err
	}
	u.Role = role
	return u, nil
}

// Invite adds a user with a password to the caller's tenant. Requires
// ADMIN; only owners may add owners.
func (s *UserService) Invite(ctx context.Context, caller *actor.Actor, in domain.InviteUserInput) (*domain.User, error) {
	callerRole, err := s.roles.RequireAtLeast(ctx, caller, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = domain.RoleMember
	}
	if !role.Valid() {
		return nil, errors.BadRequest("invalid role")
	}
	if role != domain.RoleMember && !caps.HasUserRole {
		return nil, errors.SchemaUpgradePending("user roles")
	}
	if role == domain.RoleOwner && callerRole != domain.RoleOwner {
		return nil, errors.Forbidden("only owners can add owners")
	}

	existing, err := s.users.GetByEmail(ctx, caps, in.Email)
	switch {
	case err == nil && existing != nil:
		return nil, errors.Conflict("a user with this email already exists")
	case err != nil && !errors.Is(err, errors.ErrNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal("failed to hash password")
	}

	u := &domain.User{
		TenantID:     caller.TenantID,
		Email:        in.Email,
		Name:         in.Name,
		Role:         role,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, caps, u); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID).Str("role", string(role)).Msg("user invited")

	publish(ctx, s.publisher, s.logger, messaging.EventUserCreated, messaging.UserCreatedEvent{
		UserID:   u.ID,
		TenantID: u.TenantID,
		Email:    u.Email,
		Role:     string(u.Role),
	})
	return u, nil
}

// ChangeRole sets a user's role. Only owners may grant or revoke OWNER,
// and the last owner of a tenant cannot be demoted.
func (s *UserService) ChangeRole(ctx context.Context, caller *actor.Actor, id string, role domain.Role) (*domain.User, error) {
	callerRole, err := s.roles.RequireAtLeast(ctx, caller, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, errors.BadRequest("invalid role")
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}
	if !caps.HasUserRole {
		return nil, errors.SchemaUpgradePending("user roles")
	}

	var previous domain.Role
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.users.Role(ctx, caller.TenantID, id)
		if err != nil {
			return err
		}
		previous = current
		if current == role {
			return nil
		}

		if (current == domain.RoleOwner || role == domain.RoleOwner) && callerRole != domain.RoleOwner {
			return errors.Forbidden("only owners can grant or revoke the owner role")
		}
		if current == domain.RoleOwner {
			owners, err := s.users.CountOwners(ctx, caller.TenantID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return errors.Forbidden("cannot demote the last owner")
			}
		}
		return s.users.SetRole(ctx, caller.TenantID, id, role)
	})
	if err != nil {
		return nil, err
	}

	if previous != role {
		s.logger.Info().
			Str("user_id", id).
			Str("old_role", string(previous)).
			Str("new_role", string(role)).
			Msg("user role changed")

		publish(ctx, s.publisher, s.logger, messaging.EventUserRoleChanged, messaging.UserRoleChangedEvent{
			UserID:   id,
			TenantID: caller.TenantID,
			OldRole:  string(previous),
			NewRole:  string(role),
			ActorID:  caller.ID,
		})
	}

	return s.users.Get(ctx, caps, caller.TenantID, id)
}
