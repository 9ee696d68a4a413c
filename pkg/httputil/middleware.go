package httputil

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/logger"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
)

// RequestID middleware adds a request ID to each request
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger middleware logs HTTP requests.
// The auth middleware runs deeper in the chain, so the caller is read back
// from the holder it fills in.
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			holder := &callerHolder{}
			ctx := context.WithValue(r.Context(), callerHolderKey{}, holder)
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			event := log.Info()
			if wrapped.statusCode >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("user_id", holder.userID).
				Str("tenant_id", holder.tenantID).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

// Recoverer middleware recovers from panics
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("panic", err).
						Str("request_id", GetRequestID(r.Context())).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					Error(w, nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type callerHolderKey struct{}

type callerHolder struct {
	userID   string
	tenantID string
}

// WithCaller attaches the authenticated actor to ctx and records it for the
// access log.
func WithCaller(ctx context.Context, a *actor.Actor) context.Context {
	if holder, ok := ctx.Value(callerHolderKey{}).(*callerHolder); ok {
		holder.userID = a.ID
		holder.tenantID = a.TenantID
	}
	return actor.WithActor(ctx, a)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
