// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them without
// importing anything transport-related.
package requestcontext

import (
	"context"
	"time"

	id "fhevault/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	callerKey      struct{}
	requestIDKey   struct{}
	ipHashKey      struct{}
	userAgentKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyCaller      = callerKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyIPHash      = ipHashKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Caller retrieves the authenticated caller address from the context.
// Returns the zero address if not set.
func Caller(ctx context.Context) id.Address {
	if addr, ok := ctx.Value(ContextKeyCaller).(id.Address); ok {
		return addr
	}
	return ""
}

// WithCaller injects the authenticated caller address into the context.
func WithCaller(ctx context.Context, addr id.Address) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, addr)
}

// RequestID retrieves the correlation id assigned by middleware.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return rid
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, rid)
}

// IPHash retrieves the hashed client IP. Raw IPs are never stored.
func IPHash(ctx context.Context) string {
	if h, ok := ctx.Value(ContextKeyIPHash).(string); ok {
		return h
	}
	return ""
}

// WithIPHash injects the hashed client IP into the context.
func WithIPHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, ContextKeyIPHash, hash)
}

// UserAgent retrieves the classified user-agent string, if middleware set one.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithUserAgent injects the classified user-agent into the context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ContextKeyUserAgent, ua)
}

// Now returns the request timestamp if one was injected, falling back to the
// wall clock. Tests inject fixed times through WithTime.
func Now(ctx context.Context) time.Time {
	if t, ok := TimeFrom(ctx); ok {
		return t
	}
	return time.Now()
}

// TimeFrom returns the injected request timestamp, if any. Services prefer
// this over their own clock so expiry is judged against the moment the
// request entered the system.
func TimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ContextKeyRequestTime).(time.Time)
	return t, ok
}

// WithTime injects a fixed request timestamp into the context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
