package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/aerocargo/shiptrack/internal/storage/pgshipment"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetByAWB(w http.ResponseWriter, r *http.Request) {
	awb := chi.URLParam(r, "awb")
	sh, err := s.svc.GetShipmentByAWB(r.Context(), awb)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(r, sh))
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	sh, err := s.svc.GetShipment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !canAccessShipment(r, sh.CustomerID) {
		writeError(w, apperr.NewAccessDenied(identityFromContext(r.Context()).CustomerID, "shipment"))
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(r, sh))
}

func (s *Server) handleCustomerHistory(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	limit, offset := pagination(r, 100)
	shipments, err := s.svc.ListCustomerShipments(r.Context(), customerID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]shipmentResponse, 0, len(shipments))
	for _, sh := range shipments {
		out = append(out, s.snapshot(r, sh))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) snapshot(r *http.Request, sh *models.Shipment) shipmentResponse {
	eta, _ := s.svc.EstimatedDeliveryDate(r.Context(), sh)
	hasExceptions := false
	if evs, err := s.svc.ListEvents(r.Context(), sh.ID, pgshipment.EventFilter{ExceptionOnly: true}, 1, 0); err == nil && len(evs) > 0 {
		hasExceptions = true
	}
	return toShipmentResponse(sh, eta, hasExceptions)
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.NewValidation("body", "invalid JSON"))
		return
	}
	sh, err := s.svc.CreateShipment(r.Context(), req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.snapshot(r, sh))
}

// handleCancelShipment is the sole administrative path to
// current_status=CANCELLED: role=admin, never reachable through the
// manual-apply operator surface (POST /tracking/events).
func (s *Server) handleCancelShipment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	sh, err := s.svc.CancelShipment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(r, sh))
}

func parseID(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.NewValidation(name, "must be a positive integer")
	}
	return id, nil
}
