// Package ratelimiter implements token bucket rate limiting with an
// in-process store and a Redis store shared between instances.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. A request that would take more tokens than are left is
// denied and takes nothing.
//
//	limiter, err := ratelimiter.New(ratelimiter.NewRedisStore(client, ""), ratelimiter.Config{
//		Capacity:       10,
//		RefillRate:     1,
//		RefillInterval: 6 * time.Second,
//	})
//	router.With(ratelimiter.Middleware(limiter, keyFunc)).Post("/billing/checkout", h)
package ratelimiter
