package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/brightdesk/crm-backend/internal/auth/jwt"
	"github.com/brightdesk/crm-backend/internal/auth/service"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/httputil"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
	"github.com/brightdesk/crm-backend/pkg/tenant"
)

// Authenticator is the auth surface used by AuthHandler.
type Authenticator interface {
	Register(ctx context.Context, req *service.RegisterRequest) (*service.LoginResponse, error)
	Login(ctx context.Context, req *service.LoginRequest) (*service.LoginResponse, error)
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*jwt.Claims, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service Authenticator
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc Authenticator, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		logger:  log,
	}
}

// Register creates a tenant and its owner
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	response, err := h.service.Register(r.Context(), &req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, response)
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	response, err := h.service.Login(r.Context(), &req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, response)
}

// Authenticate validates the bearer token and attaches the caller to the
// request context.
func Authenticate(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.ErrorLocalized(w, r, errors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				httputil.ErrorLocalized(w, r, errors.Unauthorized("invalid authorization header format"))
				return
			}

			claims, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				log.Debug().Err(err).Msg("token validation failed")
				httputil.ErrorLocalized(w, r, err)
				return
			}

			ctx := httputil.WithCaller(r.Context(), &actor.Actor{
				ID:       claims.Subject,
				TenantID: claims.TenantID,
				Email:    claims.Email,
				Name:     claims.Name,
			})
			ctx = tenant.WithTenantID(ctx, claims.TenantID)
			ctx = messaging.WithCorrelationID(ctx, httputil.GetRequestID(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
