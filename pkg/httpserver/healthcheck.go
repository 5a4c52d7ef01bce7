package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/linkshelf/linkshelf/pkg/logger"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(context.Context) error

// HealthCheckTimeout bounds each probe.
const HealthCheckTimeout = 3 * time.Second

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheckHandler runs every check and answers 200 when all pass and 503
// otherwise. With no checks it acts as a liveness probe.
func HealthCheckHandler(log *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	if log == nil {
		log = logger.Noop()
	}
	names := slices.Sorted(maps.Keys(checks))

	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ok"}
		status := http.StatusOK

		if len(names) > 0 {
			report.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
			err := checks[name](ctx)
			cancel()
			if err != nil {
				log.ErrorContext(r.Context(), "health check failed", slog.String("check", name), logger.Error(err))
				report.Checks[name] = "unavailable"
				report.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			report.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}
