package httpapi

import (
	"net/http"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
)

type statsResponse struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Total      int64     `json:"total"`
	Milestones int64     `json:"milestones"`
	Exceptions int64     `json:"exceptions"`
	Critical   int64     `json:"critical"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "date_from", time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseTimeParam(r, "date_to", time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}

	st, err := s.svc.Stats(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		From: from, To: to,
		Total: st.Total, Milestones: st.Milestones, Exceptions: st.Exceptions, Critical: st.Critical,
	})
}

func parseTimeParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.NewValidation(name, "must be RFC3339")
	}
	return t, nil
}
