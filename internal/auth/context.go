package auth

import (
	"context"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type contextKey string

const (
	actorKey      contextKey = "actor"
	credentialKey contextKey = "credential"
)

func WithActor(ctx context.Context, a appointment.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the authenticated actor, or the zero Actor.
func ActorFromContext(ctx context.Context) appointment.Actor {
	a, _ := ctx.Value(actorKey).(appointment.Actor)
	return a
}

// WithCredential keeps the caller's raw bearer token so outbound calls can
// act on its behalf.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey, token)
}

func CredentialFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(credentialKey).(string)
	return tok
}
