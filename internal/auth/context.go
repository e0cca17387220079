// Package auth provides request identity helpers.
//
// The engine does not own user accounts; it trusts the platform front door,
// which signs each request's user id into a bearer token. This package is
// designed to be imported by both middleware and handler packages without
// causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// userIDContextKey is the key used to store the verified user id in context.
	userIDContextKey contextKey = "user_id"

	// actorContextKey is the key used to store the admin actor label in context.
	actorContextKey contextKey = "actor"
)

// UserID retrieves the verified user id from the context.
// The second return is false for unauthenticated requests.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	return id, ok
}

// UserIDFromRequest retrieves the verified user id from the request context.
func UserIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	return UserID(r.Context())
}

// WithUserID stores a verified user id in the context.
//
// This is typically called by authentication middleware after verifying the
// identity token.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDContextKey, id)
}

// Actor retrieves the admin actor label from the context, or "" when the
// request did not pass admin authentication.
func Actor(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey).(string)
	return actor
}

// WithActor stores the admin actor label in the context. Set by the admin
// key middleware so audit rows can name who acted.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}
