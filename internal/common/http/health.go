package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

func HealthHandler(log *logger.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteErrorEnvelope(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed", nil, "")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				log.Warnf("health check %s failed: %v", name, err)
				body[name] = "down"
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				continue
			}
			body[name] = "up"
		}

		WriteJSON(w, status, body)
	}
}
