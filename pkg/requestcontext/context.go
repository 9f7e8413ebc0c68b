// Package requestcontext provides transport-independent accessors for
// call-scoped values.
//
// The realm engine threads two values through every operation that the
// original system kept in thread-locals: the domain that resolution settled
// on, and a correlation id for audit records. Context values replace the
// thread-locals so nothing leaks across unrelated operations on a reused
// goroutine.
//
// Usage in the orchestrator (set values):
//
//	ctx = requestcontext.WithResolvedDomain(ctx, store.DomainName)
//
// Usage in listeners and sinks (read values):
//
//	domain := requestcontext.ResolvedDomain(ctx)
//	requestID := requestcontext.RequestID(ctx)
package requestcontext

import (
	"context"
	"time"
)

type (
	resolvedDomainKey struct{}
	actorKey          struct{}
	requestIDKey      struct{}
	requestTimeKey    struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyResolvedDomain = resolvedDomainKey{}
	ContextKeyActor          = actorKey{}
	ContextKeyRequestID      = requestIDKey{}
	ContextKeyRequestTime    = requestTimeKey{}
)

// ResolvedDomain retrieves the domain the current operation resolved to.
// Empty until the orchestrator has classified the target name.
func ResolvedDomain(ctx context.Context) string {
	if d, ok := ctx.Value(ContextKeyResolvedDomain).(string); ok {
		return d
	}
	return ""
}

// WithResolvedDomain records the domain resolution settled on. Each
// operation overwrites the value at entry, so stale domains never survive
// into an unrelated call.
func WithResolvedDomain(ctx context.Context, domain string) context.Context {
	return context.WithValue(ctx, ContextKeyResolvedDomain, domain)
}

// Actor retrieves the identity performing the operation, for audit records
// of by-admin operations. Empty when the subject acts on itself.
func Actor(ctx context.Context) string {
	if a, ok := ctx.Value(ContextKeyActor).(string); ok {
		return a
	}
	return ""
}

// WithActor injects the acting identity into the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// RequestID retrieves the correlation id from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the call-scoped time, falling back to time.Now for workers
// and tests that skip the transport layer.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the call-scoped time, keeping timestamps consistent within
// one logical operation.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
