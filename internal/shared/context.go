package shared

import "context"

// Actor identifies the authenticated user performing an operation. It is
// resolved by the outer HTTP layer and threaded explicitly through every
// call into the core so audit fields never depend on ambient process state.
type Actor struct {
	ID   int64
	Name string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor is
// returned when none is present.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
