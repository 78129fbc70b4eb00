package api

import (
	"encoding/json"
	"net/http"

	"github.com/lox/ecovision/internal/filters"
	"github.com/lox/ecovision/internal/models"
)

// StateSnapshot is the JSON view of a session's dashboard.
type StateSnapshot struct {
	Session   string            `json:"session"`
	Filters   filters.State     `json:"filters"`
	Locations []models.Location `json:"locations"`
	Metrics   []models.Metric   `json:"metrics"`
	Dataset   json.RawMessage   `json:"dataset"`
	Trends    json.RawMessage   `json:"trends"`
	Loading   bool              `json:"loading"`
	LastToken uint64            `json:"last_token"`
	LastError string            `json:"last_error,omitempty"`
}

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	st := sess.ctrl.State()

	snap := StateSnapshot{
		Session:   sess.id,
		Filters:   st.Filters,
		Locations: st.Locations,
		Metrics:   st.Metrics,
		Dataset:   st.Dataset,
		Trends:    st.Trends,
		Loading:   st.Loading(),
		LastToken: st.LastToken,
		LastError: st.LastError,
	}
	if snap.Locations == nil {
		snap.Locations = []models.Location{}
	}
	if snap.Metrics == nil {
		snap.Metrics = []models.Metric{}
	}
	if len(snap.Dataset) == 0 {
		snap.Dataset = json.RawMessage("null")
	}
	if len(snap.Trends) == 0 {
		snap.Trends = json.RawMessage("null")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
