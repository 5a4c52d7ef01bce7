package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/handler"
	"github.com/linkshelf/linkshelf/pkg/billing"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	RoleAdmin      = "admin"
)

type actorKey struct{}

// ActorFromContext returns the caller resolved by the identify middleware.
// ok is false for anonymous requests.
func ActorFromContext(ctx context.Context) (billing.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(billing.Actor)
	return a, ok
}

func withActor(ctx context.Context, a billing.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// identify reads the trusted identity headers. A malformed user id is
// rejected rather than treated as anonymous.
func (s *server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			s.errors(handler.NewContext(w, r), handler.ErrUnauthorized.WithMessage("invalid user id"))
			return
		}
		actor := billing.Actor{
			UserID: id,
			Admin:  strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), RoleAdmin),
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

// requireUser rejects anonymous callers. The zero billing.Actor is the
// system actor, so it must never reach a service from HTTP.
func (s *server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a, ok := ActorFromContext(r.Context()); !ok || a.IsSystem() {
			s.errors(handler.NewContext(w, r), handler.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a, _ := ActorFromContext(r.Context()); !a.Admin {
			s.errors(handler.NewContext(w, r), handler.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actor is only called behind requireUser.
func actor(ctx context.Context) billing.Actor {
	a, _ := ActorFromContext(ctx)
	return a
}
