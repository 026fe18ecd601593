package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swiftdrop/swiftdrop-backend/api/middleware"
	"github.com/swiftdrop/swiftdrop-backend/api/responses"
	"github.com/swiftdrop/swiftdrop-backend/api/validators"
	"github.com/swiftdrop/swiftdrop-backend/internal/reviews"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

// ReviewCreate records the session user's review of their counterparty on a
// delivered delivery.
func ReviewCreate(svc *reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}

		var body reviews.CreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), middleware.UserIDFromContext(r.Context()), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// UserReviews lists the reviews received by a user plus their average rating.
func UserReviews(svc *reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}

		summary, err := svc.ForUser(r.Context(), chi.URLParam(r, "userId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}
