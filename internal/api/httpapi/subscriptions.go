package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/models"
)

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.NewValidation("body", "invalid JSON"))
		return
	}

	id := identityFromContext(r.Context())
	if req.SubscriberID == "" {
		req.SubscriberID = id.CustomerID
	}

	sh, err := s.svc.GetShipment(r.Context(), req.ShipmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !canAccessShipment(r, sh.CustomerID) {
		writeError(w, apperr.NewAccessDenied(id.CustomerID, "shipment subscription"))
		return
	}

	sub, err := s.svc.CreateSubscription(r.Context(), models.Subscription{
		ShipmentID:            req.ShipmentID,
		SubscriberID:          req.SubscriberID,
		Method:                req.Method,
		Endpoint:              req.Endpoint,
		FilterMilestone:       req.FilterMilestone,
		FilterException:       req.FilterException,
		FilterLocationUpdates: req.FilterLocationUpdates,
		FilterAllEvents:       req.FilterAllEvents,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscriptionResponse{ID: sub.ID, ShipmentID: sub.ShipmentID, Method: sub.Method, Active: sub.Active})
}
