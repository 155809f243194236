package sentinel

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Identity names whoever is driving the session. Overrides are attributed
// to it.
type Identity interface {
	Actor(ctx context.Context) string
}

// StaticIdentity is a single local user with a per-process session id.
type StaticIdentity struct {
	Name    string
	Session string
}

func NewStaticIdentity(name string) StaticIdentity {
	if strings.TrimSpace(name) == "" {
		name = "local"
	}
	return StaticIdentity{Name: name, Session: uuid.NewString()}
}

func (s StaticIdentity) Actor(ctx context.Context) string {
	if a, ok := ActorFrom(ctx); ok {
		return a
	}
	return s.Name + "/" + s.Session
}

type actorKey struct{}

// WithActor attaches a caller-supplied actor, taking precedence over the
// service identity.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(actorKey{}).(string)
	return a, ok && a != ""
}
