package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/swiftdrop/swiftdrop-backend/api/middleware"
	"github.com/swiftdrop/swiftdrop-backend/api/responses"
	"github.com/swiftdrop/swiftdrop-backend/api/validators"
	"github.com/swiftdrop/swiftdrop-backend/internal/adapters/geo"
	"github.com/swiftdrop/swiftdrop-backend/internal/locations"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

type locationReportRequest struct {
	Latitude  float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"required,min=-180,max=180"`
	Heading   float64 `json:"heading" validate:"min=0,max=360"`
	Speed     float64 `json:"speed" validate:"min=0"`
}

// LocationReport upserts the session courier's live position.
func LocationReport(svc *locations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "location service unavailable"))
			return
		}

		var body locationReportRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fix := geo.Position{
			Latitude:  body.Latitude,
			Longitude: body.Longitude,
			Heading:   body.Heading,
			Speed:     body.Speed,
			Timestamp: time.Now().UTC(),
		}
		loc, err := svc.Record(r.Context(), middleware.UserIDFromContext(r.Context()), fix)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, loc)
	}
}

// CourierLocation returns the latest known position for a courier, letting
// the sender track an in-flight delivery.
func CourierLocation(svc *locations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "location service unavailable"))
			return
		}

		loc, err := svc.Latest(r.Context(), chi.URLParam(r, "courierId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, loc)
	}
}
