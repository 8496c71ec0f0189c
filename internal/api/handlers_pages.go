package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/lox/climadash/internal/dashboard"
	"github.com/lox/climadash/internal/filters"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	form := r.URL.Query()

	data := IndexData{
		Kinds:     kindNames(),
		Features:  filters.FeatureOptions(),
		CanAdd:    sess.Panels() < dashboard.MaxPanels,
		CanRemove: sess.Panels() > dashboard.MinPanels,
		State:     carriedState(form).Encode(),
	}

	cities, err := s.cities.Cities(r.Context())
	if err != nil {
		log.Printf("api: list cities: %v", err)
		data.Error = "The weather database is unavailable."
	}
	data.Cities = cities

	if err == nil {
		reqs := panelRequests(form, sess.Panels())
		results := s.dispatcher.RenderAll(r.Context(), reqs, filters.FormInput(form))
		for i, res := range results {
			data.Panels = append(data.Panels, PanelView{Index: i, Kind: reqs[i].Kind, Result: res})
		}
	}

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		log.Printf("api: render index: %v", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) handlePanelAdd(w http.ResponseWriter, r *http.Request) {
	s.changePanels(w, r, (*dashboard.Session).AddPanel)
}

func (s *Server) handlePanelRemove(w http.ResponseWriter, r *http.Request) {
	s.changePanels(w, r, (*dashboard.Session).RemovePanel)
}

// changePanels applies a panel count change and redirects back to the
// dashboard with the submitted widget state.
func (s *Server) changePanels(w http.ResponseWriter, r *http.Request, change func(*dashboard.Session) int) {
	sess := s.session(w, r)
	change(sess)

	target := "/"
	if err := r.ParseForm(); err == nil {
		if state, err := url.ParseQuery(r.PostForm.Get("state")); err == nil && len(state) > 0 {
			target += "?" + carriedState(state).Encode()
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Sessions int    `json:"sessions"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok", Database: "ok", Sessions: s.sessions.Len()}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		health.Status = "degraded"
		health.Database = "unreachable"
		health.Error = err.Error()
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}
