package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightdesk/crm-backend/internal/auth/jwt"
	"github.com/brightdesk/crm-backend/internal/auth/service"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/config"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/tenant"
	"github.com/brightdesk/crm-backend/pkg/testutil"
)

type stubAuth struct {
	gotLogin *service.LoginRequest
	err      error
}

func (s *stubAuth) Register(_ context.Context, req *service.RegisterRequest) (*service.LoginResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.LoginResponse{AccessToken: "tok", TokenType: "Bearer"}, nil
}

func (s *stubAuth) Login(_ context.Context, req *service.LoginRequest) (*service.LoginResponse, error) {
	s.gotLogin = req
	if s.err != nil {
		return nil, s.err
	}
	return &service.LoginResponse{AccessToken: "tok", TokenType: "Bearer"}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestLogin(t *testing.T) {
	stub := &stubAuth{}
	h := NewAuthHandler(stub, logger.Nop())

	req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ada@acme.test", "password": "secret",
	})
	rr := testutil.ExecuteRequest(http.HandlerFunc(h.Login), req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	require.NotNil(t, stub.gotLogin)
	assert.Equal(t, "ada@acme.test", stub.gotLogin.Email)
}

func TestLogin_ValidationAndCredentials(t *testing.T) {
	h := NewAuthHandler(&stubAuth{}, logger.Nop())

	req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "not-an-email"})
	rr := testutil.ExecuteRequest(http.HandlerFunc(h.Login), req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	env := decodeEnvelope(t, rr.Body.Bytes())
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Details, "password")

	h = NewAuthHandler(&stubAuth{err: errors.InvalidCredentials()}, logger.Nop())
	req = testutil.NewHTTPRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ada@acme.test", "password": "wrong",
	})
	rr = testutil.ExecuteRequest(http.HandlerFunc(h.Login), req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestRegister_Created(t *testing.T) {
	h := NewAuthHandler(&stubAuth{}, logger.Nop())

	req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"tenant_name": "Acme", "name": "Ada", "email": "ada@acme.test", "password": "correct-horse",
	})
	rr := testutil.ExecuteRequest(http.HandlerFunc(h.Register), req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
}

func TestAuthenticate(t *testing.T) {
	mgr := jwt.NewManager(&config.JWTConfig{Secret: "s", AccessExpiry: time.Hour, Issuer: "test"})
	tok, err := mgr.Issue(&jwt.UserInfo{ID: "u1", TenantID: "t1", Email: "ada@acme.test"})
	require.NoError(t, err)

	var seen *actor.Actor
	var seenTenant string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = actor.FromContext(r.Context())
		seenTenant, _ = tenant.TenantID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := Authenticate(mgr, logger.Nop())(next)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + tok.AccessToken, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/deals", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := testutil.ExecuteRequest(mw, req)
			testutil.AssertStatus(t, rr, tt.status)

			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "u1", seen.ID)
				assert.Equal(t, "t1", seen.TenantID)
				assert.Equal(t, "t1", seenTenant)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
