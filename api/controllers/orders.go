package controllers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/api/responses"
	"github.com/mercaline/storefront-backend/api/validators"
	checkoutsvc "github.com/mercaline/storefront-backend/internal/checkout"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
)

type createOrderRequest struct {
	LockToken string `json:"lock_token" validate:"required"`
}

// CreateOrder consumes the lock behind the token and finalizes the order.
// Replaying the same token answers with the order it already produced.
func CreateOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOrder(r.Context(), payload.LockToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Existing {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// OrderDetail returns a finalized order with its line items.
func OrderDetail(repo checkoutsvc.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order repository unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id must be a uuid"))
			return
		}

		order, err := repo.FindOrderByID(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order"))
			return
		}
		responses.WriteSuccess(w, order)
	}
}
