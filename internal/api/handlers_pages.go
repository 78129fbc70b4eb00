package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lox/ecovision/internal/climateapi"
	"github.com/lox/ecovision/internal/dashboard"
	"github.com/lox/ecovision/internal/filters"
	"github.com/lox/ecovision/internal/models"
)

const applyOutcomeHeader = "X-Apply-Outcome"

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Errorw("template_failed", "template", name, "err", err)
	}
}

func (s *Server) pageData(r *http.Request, sess *session) PageData {
	st := sess.ctrl.State()
	data := PageData{
		Form:    filters.NewForm(st.Filters, st.Locations, st.Metrics),
		Results: newResultsData(st),
	}
	if s.store != nil {
		recent, err := s.store.RecentApplies(r.Context(), sess.id, recentApplies)
		if err != nil {
			s.log.Errorw("recent_applies_failed", "session", sess.id, "err", err)
		}
		data.Recent = recent
	}
	return data
}

// requireSession resolves the caller's live session. Only the index creates
// sessions, so anything else without one is sent back there.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	if sess, ok := s.sessions.lookup(w, r); ok {
		return sess, true
	}
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "no session"})
	case isHTMX(r):
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusUnauthorized)
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
	return nil, false
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.open(w, r)
	s.render(w, "index.html", s.pageData(r, sess))
}

// updateFilters folds the submitted fields into the session's filters and
// persists them. It never fetches.
func (s *Server) updateFilters(r *http.Request, sess *session) (filters.State, error) {
	if err := r.ParseForm(); err != nil {
		return filters.State{}, err
	}
	st := sess.ctrl.State()
	f := filters.FromForm(r.PostForm, st.Filters)
	if f != st.Filters {
		sess.ctrl.SetFilters(f)
	}
	if s.store != nil {
		if err := s.store.SaveFilters(r.Context(), sess.id, f); err != nil {
			s.log.Errorw("save_filters_failed", "session", sess.id, "err", err)
		}
	}
	return f, nil
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if _, err := s.updateFilters(r, sess); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	st := sess.ctrl.State()
	s.render(w, "filters.html", filters.NewForm(st.Filters, st.Locations, st.Metrics))
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if _, err := s.updateFilters(r, sess); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := sess.ctrl.Apply(r.Context())
	s.recordApply(r, sess, res)

	w.Header().Set(applyOutcomeHeader, string(res.Outcome))
	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, "results.html", newResultsData(sess.ctrl.State()))
}

func (s *Server) recordApply(r *http.Request, sess *session, res dashboard.ApplyResult) {
	if s.store == nil {
		return
	}
	rec := models.ApplyRecord{
		SessionID:    sess.id,
		Token:        res.Token,
		AnalysisType: string(res.AnalysisType),
		Outcome:      string(res.Outcome),
		Query:        climateapi.RequestPath(res.Filters),
		DurationMS:   res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		rec.Error = sql.NullString{String: res.Err.Error(), Valid: true}
	}
	if err := s.store.RecordApply(r.Context(), rec); err != nil {
		s.log.Errorw("record_apply_failed", "session", sess.id, "err", err)
	}
}

func (s *Server) handleResultsPartial(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	s.render(w, "results.html", newResultsData(sess.ctrl.State()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.store != nil {
		if _, err := s.store.MigrationVersion(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
