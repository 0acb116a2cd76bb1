package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/aria7-op/school-mis-backend/api/responses"
	"github.com/aria7-op/school-mis-backend/pkg/config"
	"github.com/aria7-op/school-mis-backend/pkg/db"
	"github.com/aria7-op/school-mis-backend/pkg/logger"
	"github.com/aria7-op/school-mis-backend/pkg/redis"
)

const readyProbeTimeout = 2 * time.Second

// HealthLive reports process liveness without touching dependencies.
func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SchoolMIS-Env", cfg.App.Env)
		responses.WriteSuccess(w, "live", map[string]string{"status": "live"})
	}
}

// HealthReady pings the datasource and cache before reporting readiness.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SchoolMIS-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				checks["database"] = "down"
				healthy = false
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "readiness database ping failed")
			} else {
				checks["database"] = "up"
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				checks["redis"] = "down"
				healthy = false
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "readiness redis ping failed")
			} else {
				checks["redis"] = "up"
			}
		}

		if !healthy {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, "degraded", checks)
			return
		}
		responses.WriteSuccess(w, "ready", checks)
	}
}
