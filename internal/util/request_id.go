package util

import (
	"context"
	"net/http"
	"strings"
)

type requestIDContextKey struct{}

const (
	// RequestIDHeader carries the correlation id between desk and circulation.
	RequestIDHeader = "X-Request-Id"

	maxRequestIDLen = 128
)

// WithRequestID propagates an incoming request id or generates one when the
// header is absent or malformed. The id lands on the response header, the
// request context, and a child logger from LoggerFromContext.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if !validRequestID(requestID) {
			requestID = NewID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := ContextWithRequestID(r.Context(), requestID)
		ctx = ContextWithLogger(ctx, LoggerFromContext(ctx).With("request_id", requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ContextWithRequestID stores id in ctx. The desk client uses it to tag outgoing calls.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the request id from ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// RequestIDFromRequest returns the request id from the request context.
func RequestIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	return RequestIDFromContext(r.Context())
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
