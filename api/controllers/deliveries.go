package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swiftdrop/swiftdrop-backend/api/middleware"
	"github.com/swiftdrop/swiftdrop-backend/api/responses"
	"github.com/swiftdrop/swiftdrop-backend/api/validators"
	"github.com/swiftdrop/swiftdrop-backend/internal/deliveries"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

// proof photos top out at 10 MiB, matching the mobile client's capture size
const maxProofPhotoBytes = 10 << 20

// DeliveryCreate posts a new delivery for the session sender.
func DeliveryCreate(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		var body deliveries.CreateRequest
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

// DeliveryAvailable lists claimable deliveries, newest posting first.
func DeliveryAvailable(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		items, err := svc.Available(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, items)
	}
}

// DeliveryAvailableStream pushes the available list over server-sent events.
// Each change to the claimable set emits a fresh snapshot; the stream ends
// when the client disconnects.
func DeliveryAvailableStream(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		feed, err := svc.WatchAvailable(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer feed.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		writeSnapshot := func() bool {
			payload, err := json.Marshal(feed.Snapshot())
			if err != nil {
				return false
			}
			if _, err := fmt.Fprintf(w, "event: available\ndata: %s\n\n", payload); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		if !writeSnapshot() {
			return
		}
		for {
			select {
			case <-r.Context().Done():
				return
			case <-feed.Updates():
				if !writeSnapshot() {
					return
				}
			}
		}
	}
}

// DeliveryDetail fetches one delivery with its parties expanded.
func DeliveryDetail(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		item, err := svc.Get(r.Context(), chi.URLParam(r, "deliveryId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, item)
	}
}

// DeliveriesForSender lists the session sender's deliveries. The partition
// query parameter narrows the slice; it defaults to all.
func DeliveriesForSender(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return listDeliveries(svc, logg, func(ctx context.Context, userID string, partition deliveries.Partition) ([]*deliveries.Delivery, error) {
		return svc.ForSender(ctx, userID, partition)
	})
}

// DeliveriesForCourier lists the session courier's claimed deliveries.
func DeliveriesForCourier(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return listDeliveries(svc, logg, func(ctx context.Context, userID string, partition deliveries.Partition) ([]*deliveries.Delivery, error) {
		return svc.ForCourier(ctx, userID, partition)
	})
}

func listDeliveries(
	svc deliveries.Service,
	logg *logger.Logger,
	list func(ctx context.Context, userID string, partition deliveries.Partition) ([]*deliveries.Delivery, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		partition := deliveries.Partition(r.URL.Query().Get("partition"))
		if partition == "" {
			partition = deliveries.PartitionAll
		}
		if !partition.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown partition"))
			return
		}

		items, err := list(r.Context(), middleware.UserIDFromContext(r.Context()), partition)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, items)
	}
}

// DeliveryEarnings summarizes the session courier's realized and pending
// payouts.
func DeliveryEarnings(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		summary, err := svc.Earnings(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}

// AdminDeliveryStats returns the platform-wide delivery and revenue rollup
// for the admin dashboard.
func AdminDeliveryStats(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, stats)
	}
}

// DeliveryAccept claims a pending delivery for the session courier.
func DeliveryAccept(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return deliveryTransition(svc, logg, func(r *http.Request, svc deliveries.Service) (*deliveries.Delivery, error) {
		return svc.Accept(r.Context(), chi.URLParam(r, "deliveryId"), middleware.UserIDFromContext(r.Context()))
	})
}

// DeliveryPickup records that the courier collected the package.
func DeliveryPickup(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return deliveryTransition(svc, logg, func(r *http.Request, svc deliveries.Service) (*deliveries.Delivery, error) {
		return svc.MarkPickedUp(r.Context(), chi.URLParam(r, "deliveryId"), middleware.UserIDFromContext(r.Context()))
	})
}

// DeliveryTransit records that the courier is en route to the dropoff.
func DeliveryTransit(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return deliveryTransition(svc, logg, func(r *http.Request, svc deliveries.Service) (*deliveries.Delivery, error) {
		return svc.StartTransit(r.Context(), chi.URLParam(r, "deliveryId"), middleware.UserIDFromContext(r.Context()))
	})
}

// DeliveryCancel withdraws a pending delivery. Only the sender may cancel,
// and only while no courier has claimed it.
func DeliveryCancel(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return deliveryTransition(svc, logg, func(r *http.Request, svc deliveries.Service) (*deliveries.Delivery, error) {
		return svc.Cancel(r.Context(), chi.URLParam(r, "deliveryId"), middleware.UserIDFromContext(r.Context()))
	})
}

// DeliveryDispute flags a delivery for manual resolution.
func DeliveryDispute(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return deliveryTransition(svc, logg, func(r *http.Request, svc deliveries.Service) (*deliveries.Delivery, error) {
		return svc.Dispute(r.Context(), chi.URLParam(r, "deliveryId"), middleware.UserIDFromContext(r.Context()))
	})
}

func deliveryTransition(
	svc deliveries.Service,
	logg *logger.Logger,
	run func(r *http.Request, svc deliveries.Service) (*deliveries.Delivery, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		item, err := run(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, item)
	}
}

// DeliveryComplete accepts the proof photo as multipart form data and moves
// the delivery to delivered.
func DeliveryComplete(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		if err := r.ParseMultipartForm(maxProofPhotoBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}

		file, header, err := r.FormFile("photo")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "proof photo is required"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxProofPhotoBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read proof photo"))
			return
		}

		photo := deliveries.ProofPhoto{
			Data:        data,
			ContentType: header.Header.Get("Content-Type"),
		}
		item, err := svc.Complete(r.Context(), chi.URLParam(r, "deliveryId"), middleware.UserIDFromContext(r.Context()), photo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, item)
	}
}
