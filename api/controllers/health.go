package controllers

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/multierr"

	"github.com/mercaline/storefront-backend/api/responses"
	"github.com/mercaline/storefront-backend/pkg/config"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mercaline-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when every backing dependency answers.
func HealthReady(cfg *config.Config, logg *logger.Logger, db, redis pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mercaline-Env", cfg.App.Env)

		var errs error
		if db == nil {
			errs = multierr.Append(errs, fmt.Errorf("db: not configured"))
		} else if err := db.Ping(r.Context()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("db: %w", err))
		}
		if redis == nil {
			errs = multierr.Append(errs, fmt.Errorf("redis: not configured"))
		} else if err := redis.Ping(r.Context()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("redis: %w", err))
		}

		if errs != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "readiness check failed"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
