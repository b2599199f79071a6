package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/integrations/source"
	"github.com/aerocargo/shiptrack/internal/integrations/source/manual"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/aerocargo/shiptrack/internal/storage/pgshipment"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
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
		writeError(w, apperr.NewAccessDenied(identityFromContext(r.Context()).CustomerID, "shipment events"))
		return
	}
	limit, offset := pagination(r, 1000)
	filter := pgshipment.EventFilter{
		Category:            r.URL.Query().Get("category"),
		MilestoneOnly:       r.URL.Query().Get("milestone_only") == "true",
		ExceptionOnly:       r.URL.Query().Get("exception_only") == "true",
		CustomerVisibleOnly: r.URL.Query().Get("customer_visible_only") == "true",
	}
	evs, err := s.svc.ListEvents(r.Context(), id, filter, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]eventResponse, 0, len(evs))
	for _, e := range evs {
		out = append(out, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateEvent is the manual apply path: an operator submits a
// canonical event directly, stamped with the seeded "manual" source row
// so it participates in dedup/precedence exactly like any adapter-sourced
// event. Manual applies go through even when tracking is disabled.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.NewValidation("body", "invalid JSON"))
		return
	}
	if req.ShipmentID == 0 && req.AWBNumber != "" {
		sh, err := s.svc.GetShipmentByAWB(r.Context(), req.AWBNumber)
		if err != nil {
			writeError(w, err)
			return
		}
		req.ShipmentID = sh.ID
	}
	if req.ShipmentID == 0 {
		writeError(w, apperr.NewValidation("shipment_id", "required (or awb_number)"))
		return
	}
	eventTime, err := parseEventTime(req.EventDatetime)
	if err != nil {
		writeError(w, err)
		return
	}

	manualSource, err := s.lookup.GetSourceByName(r.Context(), "manual")
	if err != nil {
		writeError(w, err)
		return
	}

	candidate := &models.Event{
		Code:            req.Code,
		Description:     req.Description,
		Category:        orElse(req.Category, models.EventCategoryStatusUpdate),
		Location:        models.Location{Name: req.LocationName},
		EventDatetime:   eventTime,
		OriginalTZ:      req.OriginalTZ,
		IsMilestone:     req.IsMilestone,
		IsException:     req.IsException,
		IsCritical:      req.IsCritical,
		Severity:        orElse(req.Severity, models.SeverityInfo),
		ExternalID:      req.ExternalID,
		Reference:       req.Reference,
		CustomerVisible: true,
	}
	candidate, err = manual.New(manualSource.ID).FetchOne(r.Context(), candidate)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, stored, err := s.svc.Apply(r.Context(), req.ShipmentID, candidate, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if outcome == models.OutcomeDuplicate {
		writeJSON(w, http.StatusConflict, errorBody{Error: "duplicate event"})
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(stored))
}

// handleForceRefresh implements "Force adapter refresh": unlike the
// worker's async poll cycle, this fetches from every configured source
// synchronously and applies whatever comes back before responding, so the
// operator sees the outcome in the same request.
func (s *Server) handleForceRefresh(w http.ResponseWriter, r *http.Request) {
	awb := chi.URLParam(r, "awb")
	sh, err := s.svc.GetShipmentByAWB(r.Context(), awb)
	if err != nil {
		writeError(w, err)
		return
	}
	applied, err := s.refreshOne(r.Context(), sh.ID, awb, sh.FlightNumber, sh.FlightDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkUpdateResult{AWBNumber: awb, Applied: applied})
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.NewValidation("body", "invalid JSON"))
		return
	}
	if len(req.AWBNumbers) == 0 || len(req.AWBNumbers) > 100 {
		writeError(w, apperr.NewValidation("awb_numbers", "must contain between 1 and 100 entries"))
		return
	}

	results := make([]bulkUpdateResult, 0, len(req.AWBNumbers))
	for _, awb := range req.AWBNumbers {
		sh, err := s.svc.GetShipmentByAWB(r.Context(), awb)
		if err != nil {
			results = append(results, bulkUpdateResult{AWBNumber: awb, Error: err.Error()})
			continue
		}
		applied, err := s.refreshOne(r.Context(), sh.ID, awb, sh.FlightNumber, sh.FlightDate)
		if err != nil {
			results = append(results, bulkUpdateResult{AWBNumber: awb, Error: err.Error()})
			continue
		}
		results = append(results, bulkUpdateResult{AWBNumber: awb, Applied: applied})
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) refreshOne(ctx context.Context, shipmentID uint64, awb, flightNumber string, flightDate *time.Time) (int, error) {
	target := source.Target{ShipmentID: shipmentID, AWBNumber: awb, FlightNumber: flightNumber, FlightDate: flightDate}
	applied := 0
	for _, sc := range s.sources {
		events, err := sc.Client.Fetch(ctx, target)
		if err != nil {
			continue
		}
		for _, e := range events {
			e.SourceID = sc.SourceID
			outcome, _, err := s.svc.Apply(ctx, shipmentID, e, false)
			if err == nil && outcome == models.OutcomeCreated {
				applied++
			}
		}
	}
	return applied, nil
}

func parseEventTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.NewValidation("event_datetime", "must be RFC3339")
	}
	return t, nil
}

func orElse(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
