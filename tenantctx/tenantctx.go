// Package tenantctx propagates tenant identity, caller identity and a
// correlation ID through context.Context values.
//
// A Scope is captured when an operation begins, travels across the message
// bus as envelope metadata, and is re-established before any consumer
// handler runs. All I/O performed on behalf of the operation, including
// background tasks spawned from a handler, observes the same scope.
package tenantctx

import (
	"context"
	"fmt"
)

// Scope is the ambient identity of a single logical operation.
type Scope struct {
	// TenantID is the tenant on whose behalf the operation executes.
	TenantID string

	// UserID is the acting user, if known.
	UserID string

	// CorrelationID groups all messages that stem from the same root cause.
	CorrelationID string
}

type scopeKey struct{}

// WithScope returns a context with s as its ambient scope.
//
// It panics if s.TenantID is empty, as an anonymous scope is always a
// programming error.
func WithScope(ctx context.Context, s Scope) context.Context {
	if s.TenantID == "" {
		panic("can not establish a scope without a tenant ID")
	}

	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the ambient scope of ctx.
//
// ok is false if no scope has been established.
func FromContext(ctx context.Context) (s Scope, ok bool) {
	s, ok = ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// TenantID returns the tenant ID of the ambient scope of ctx.
//
// ok is false if no scope has been established.
func TenantID(ctx context.Context) (string, bool) {
	s, ok := FromContext(ctx)
	return s.TenantID, ok
}

// Validate verifies that the ambient tenant of ctx agrees with a tenant ID
// derived independently from the caller's identity.
//
// It returns a MismatchError if both are present and disagree. Silently
// preferring either one risks writing one tenant's data under another's
// key, so the operation must be aborted instead.
func Validate(ctx context.Context, callerTenantID string) error {
	ambient, ok := TenantID(ctx)
	if !ok || callerTenantID == "" {
		return nil
	}

	if ambient != callerTenantID {
		return MismatchError{
			Ambient: ambient,
			Caller:  callerTenantID,
		}
	}

	return nil
}

// MismatchError indicates that the ambient tenant context and the caller's
// independently-derived tenant identity disagree.
type MismatchError struct {
	Ambient string
	Caller  string
}

func (e MismatchError) Error() string {
	return fmt.Sprintf(
		"ambient tenant '%s' does not match caller tenant '%s'",
		e.Ambient,
		e.Caller,
	)
}

// Detach returns a context that carries the ambient scope of ctx but none
// of its deadlines or cancelation.
//
// It is used when a handler schedules work that must outlive the handler's
// own invocation.
func Detach(ctx context.Context) context.Context {
	if s, ok := FromContext(ctx); ok {
		return WithScope(context.Background(), s)
	}

	return context.Background()
}

// Go runs fn in a new goroutine with the scope that is ambient in ctx at
// the time Go is called.
//
// The scope is captured at submission time, so it remains correct even if
// the submitting operation finishes, or the goroutine is scheduled onto a
// worker that is concurrently serving other tenants.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	detached := Detach(ctx)

	go fn(detached)
}
