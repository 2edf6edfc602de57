package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/api/responses"
	"github.com/mercaline/storefront-backend/api/validators"
	"github.com/mercaline/storefront-backend/internal/cartlock"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
)

type lockRequest struct {
	CartID uuid.UUID `json:"cart_id" validate:"required,uuid4"`
}

type lockTokenRequest struct {
	LockToken string `json:"lock_token" validate:"required"`
}

type paymentMethodRequest struct {
	CartID        uuid.UUID `json:"cart_id" validate:"required,uuid4"`
	PaymentMethod string    `json:"payment_method" validate:"required"`
}

// CheckoutLock freezes the cart's totals and holds its stock behind a lock.
func CheckoutLock(svc cartlock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lock service unavailable"))
			return
		}

		var payload lockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), payload.CartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutLockExtend pushes the lock's expiry out by a fresh TTL.
func CheckoutLockExtend(svc cartlock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lock service unavailable"))
			return
		}

		var payload lockTokenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Extend(r.Context(), payload.LockToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CheckoutLockRelease cancels the lock. It always answers 200 so page-unload
// beacons can fire without caring whether the token is still live.
func CheckoutLockRelease(svc cartlock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lock service unavailable"))
			return
		}

		var payload lockTokenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Release(r.Context(), payload.LockToken); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "released"})
	}
}

// CheckoutPaymentMethod records the shopper's payment method on the cart.
func CheckoutPaymentMethod(svc cartlock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lock service unavailable"))
			return
		}

		var payload paymentMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.UpdatePaymentMethod(r.Context(), payload.CartID, payload.PaymentMethod); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}
