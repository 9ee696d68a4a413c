// Package jwt issues and verifies access tokens. Tokens signed with the
// shared secret (HS*) are verified locally; RS*, ES* and PS* tokens are
// verified against the configured JWKS endpoint.
package jwt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/brightdesk/crm-backend/pkg/config"
	"github.com/brightdesk/crm-backend/pkg/errors"
)

// Claims represents the JWT claims. Roles are never carried in the token.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Manager handles JWT operations
type Manager struct {
	config *config.JWTConfig
	keys   oidc.KeySet
}

// NewManager creates a new JWT manager. The JWKS is fetched lazily on the
// first asymmetric token.
func NewManager(cfg *config.JWTConfig) *Manager {
	m := &Manager{config: cfg}
	if cfg.JWKSURL != "" {
		m.keys = oidc.NewRemoteKeySet(context.Background(), cfg.JWKSURL)
	}
	return m
}

// WithKeySet replaces the key set used for asymmetric tokens.
func (m *Manager) WithKeySet(keys oidc.KeySet) *Manager {
	m.keys = keys
	return m
}

// UserInfo contains user information for token generation
type UserInfo struct {
	ID       string
	TenantID string
	Email    string
	Name     string
}

// AccessToken is an issued bearer token
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"`
}

// Issue signs an HS256 access token for user.
func (m *Manager) Issue(user *UserInfo) (*AccessToken, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AccessExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		TenantID: user.TenantID,
		Email:    user.Email,
		Name:     user.Name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return nil, err
	}

	return &AccessToken{
		AccessToken: signed,
		ExpiresAt:   expiresAt,
		TokenType:   "Bearer",
	}, nil
}

// Verify validates a bearer token and returns its claims. The verification
// path is picked from the alg header.
func (m *Manager) Verify(ctx context.Context, raw string) (*Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, &Claims{})
	if err != nil {
		return nil, errors.TokenInvalid()
	}

	var claims *Claims
	alg := unverified.Method.Alg()
	switch {
	case strings.HasPrefix(alg, "HS"):
		claims, err = m.verifyHMAC(raw)
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "ES"), strings.HasPrefix(alg, "PS"):
		claims, err = m.verifyJWKS(ctx, raw)
	default:
		return nil, errors.TokenInvalid()
	}
	if err != nil {
		return nil, err
	}

	if claims.Subject == "" || claims.TenantID == "" {
		return nil, errors.TokenInvalid()
	}
	return claims, nil
}

func (m *Manager) verifyHMAC(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.TokenInvalid()
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithIssuer(m.config.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, tokenError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.TokenInvalid()
	}
	return claims, nil
}

func (m *Manager) verifyJWKS(ctx context.Context, raw string) (*Claims, error) {
	if m.keys == nil {
		return nil, errors.TokenInvalid()
	}

	payload, err := m.keys.VerifySignature(ctx, raw)
	if err != nil {
		return nil, errors.TokenInvalid()
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errors.TokenInvalid()
	}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}
	if err := jwt.NewValidator(opts...).Validate(claims); err != nil {
		return nil, tokenError(err)
	}
	return &claims, nil
}

func tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return errors.TokenExpired()
	}
	return errors.TokenInvalid()
}
