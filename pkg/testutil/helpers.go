package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/tenant"
)

// NewHTTPRequest creates a new HTTP request for testing handlers
func NewHTTPRequest(method, path string, body any) *http.Request {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// WithCaller attaches an authenticated caller to the request context,
// the way the auth middleware does.
func WithCaller(req *http.Request, caller *actor.Actor) *http.Request {
	ctx := actor.WithActor(req.Context(), caller)
	ctx = tenant.WithTenantID(ctx, caller.TenantID)
	return req.WithContext(ctx)
}

// ExecuteRequest executes an HTTP request and returns the response recorder
func ExecuteRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// AssertStatus asserts the response status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status code. Body: %s", rr.Body.String())
}

// PtrString returns a pointer to the string
func PtrString(s string) *string {
	return &s
}

// PtrBool returns a pointer to the bool
func PtrBool(b bool) *bool {
	return &b
}

// PtrFloat returns a pointer to the float
func PtrFloat(f float64) *float64 {
	return &f
}
