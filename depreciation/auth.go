package depreciation

import (
	"context"
	"fmt"
	"slices"
)

// =============================================================================
// ACTOR - Who is calling
// =============================================================================

type Actor struct {
	ID    string
	Roles []string
}

// SystemActor runs scheduled sweeps.
var SystemActor = Actor{ID: "system", Roles: []string{RoleSystem}}

const RoleSystem = "System"

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// =============================================================================
// AUTHORIZER
// =============================================================================

// Authorizer decides whether the caller in ctx may create or cancel
// depreciation postings. Denials wrap ErrPermissionDenied.
type Authorizer interface {
	AuthorizePosting(ctx context.Context) error
}

// RoleAuthorizer allows actors holding any of Roles. The system actor is
// always allowed.
type RoleAuthorizer struct {
	Roles []string
}

func (r RoleAuthorizer) AuthorizePosting(ctx context.Context) error {
	a, ok := ActorFrom(ctx)
	if !ok {
		return fmt.Errorf("no actor in request: %w", ErrPermissionDenied)
	}
	for _, role := range a.Roles {
		if role == RoleSystem || slices.Contains(r.Roles, role) {
			return nil
		}
	}
	return fmt.Errorf("actor %q may not post depreciation entries: %w", a.ID, ErrPermissionDenied)
}

// AllowAll authorizes every caller.
type AllowAll struct{}

func (AllowAll) AuthorizePosting(context.Context) error { return nil }
