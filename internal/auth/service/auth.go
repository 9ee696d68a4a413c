// Package service handles sign-up and login.
package service

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/brightdesk/crm-backend/internal/auth/jwt"
	"github.com/brightdesk/crm-backend/internal/crm/domain"
	crm "github.com/brightdesk/crm-backend/internal/crm/service"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
)

const (
	defaultPipelineName = "Sales"
	defaultPlan         = "free"
	defaultPlanStatus   = "active"
)

// AuthService handles authentication logic
type AuthService struct {
	tx            crm.TxRunner
	caps          crm.CapsSource
	tenants       crm.TenantStore
	users         crm.UserStore
	pipelines     crm.PipelineStore
	subscriptions crm.SubscriptionStore
	jwtManager    *jwt.Manager
	publisher     messaging.EventPublisher
	logger        *logger.Logger
}

// Deps groups the stores the auth service writes to.
type Deps struct {
	Tx            crm.TxRunner
	Caps          crm.CapsSource
	Tenants       crm.TenantStore
	Users         crm.UserStore
	Pipelines     crm.PipelineStore
	Subscriptions crm.SubscriptionStore
}

// NewAuthService creates a new auth service
func NewAuthService(deps Deps, jwtManager *jwt.Manager, publisher messaging.EventPublisher, log *logger.Logger) *AuthService {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &AuthService{
		tx:            deps.Tx,
		caps:          deps.Caps,
		tenants:       deps.Tenants,
		users:         deps.Users,
		pipelines:     deps.Pipelines,
		subscriptions: deps.Subscriptions,
		jwtManager:    jwtManager,
		publisher:     publisher,
		logger:        log.WithComponent("auth"),
	}
}

// RegisterRequest creates a tenant and its first user
type RegisterRequest struct {
	TenantName string `json:"tenant_name" validate:"required,max=255"`
	Name       string `json:"name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a login or registration response
type LoginResponse struct {
	AccessToken string         `json:"access_token"`
	ExpiresAt   time.Time      `json:"expires_at"`
	TokenType   string         `json:"token_type"`
	User        *domain.User   `json:"user"`
	Tenant      *domain.Tenant `json:"tenant,omitempty"`
}

// Register creates a tenant with an OWNER user and a default pipeline. The
// subscription row is only written once the subscriptions table exists.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, caps, req.Email); err == nil {
		return nil, errors.Conflict("a user with this email already exists")
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal("failed to hash password")
	}

	tenant := &domain.Tenant{Name: req.TenantName}
	user := &domain.User{
		Email:        req.Email,
		Name:         req.Name,
		Role:         domain.RoleOwner,
		PasswordHash: string(hash),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.tenants.Create(ctx, tenant); err != nil {
			return err
		}
		user.TenantID = tenant.ID
		if err := s.users.Create(ctx, caps, user); err != nil {
			return err
		}

		pipeline, err := crm.NewPipeline(tenant.ID, domain.PipelineInput{
			Name:   defaultPipelineName,
			Stages: crm.DefaultStages,
		})
		if err != nil {
			return err
		}
		if err := s.pipelines.Create(ctx, pipeline); err != nil {
			return err
		}

		if caps.HasSubscriptions {
			return s.subscriptions.Create(ctx, &domain.Subscription{
				TenantID: tenant.ID,
				Plan:     defaultPlan,
				Status:   defaultPlanStatus,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !caps.HasUserRole {
		s.logger.Warn().Str("tenant_id", tenant.ID).Msg("role column missing, owner stored without role")
	}
	s.logger.Info().Str("tenant_id", tenant.ID).Str("user_id", user.ID).Msg("tenant registered")

	if err := s.publisher.Publish(ctx, messaging.EventTenantRegistered, messaging.TenantRegisteredEvent{
		TenantID: tenant.ID,
		Name:     tenant.Name,
		OwnerID:  user.ID,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish tenant.registered")
	}

	resp, err := s.respond(user)
	if err != nil {
		return nil, err
	}
	resp.Tenant = tenant
	return resp, nil
}

// Login authenticates a user and returns an access token
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, caps, req.Email)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.InvalidCredentials()
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Debug().Str("user_id", user.ID).Msg("password mismatch")
		return nil, errors.InvalidCredentials()
	}

	return s.respond(user)
}

func (s *AuthService) respond(user *domain.User) (*LoginResponse, error) {
	tok, err := s.jwtManager.Issue(&jwt.UserInfo{
		ID:       user.ID,
		TenantID: user.TenantID,
		Email:    user.Email,
		Name:     user.Name,
	})
	if err != nil {
		return nil, errors.Internal("failed to issue token")
	}

	return &LoginResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
		TokenType:   tok.TokenType,
		User:        user,
	}, nil
}
