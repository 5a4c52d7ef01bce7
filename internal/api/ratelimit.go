package api

import (
	"net/http"

	"github.com/linkshelf/linkshelf/handler"
	"github.com/linkshelf/linkshelf/pkg/clientip"
	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/ratelimiter"
)

// limitKey buckets by user, or by address for anonymous callers.
func limitKey(r *http.Request) string {
	if a, ok := ActorFromContext(r.Context()); ok && !a.IsSystem() {
		return "user:" + a.UserID.String()
	}
	if ip := clientip.FromContext(r.Context()); ip != "" {
		return "ip:" + ip
	}
	return ""
}

// throttle applies Deps.Limiter. A failing limiter store never blocks
// billing; it is logged and the request continues.
func (s *server) throttle(next http.Handler) http.Handler {
	if s.Limiter == nil {
		return next
	}
	return ratelimiter.Middleware(s.Limiter, limitKey,
		ratelimiter.OnLimited(func(w http.ResponseWriter, r *http.Request, _ ratelimiter.Result) {
			s.errors(handler.NewContext(w, r), handler.ErrTooManyRequests)
		}),
		ratelimiter.OnError(func(w http.ResponseWriter, r *http.Request, err error) {
			s.Logger.WarnContext(r.Context(), "rate limiter unavailable", logger.Error(err))
			next.ServeHTTP(w, r)
		}),
	)(next)
}
