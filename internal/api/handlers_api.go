package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/lox/climadash/internal/dashboard"
	"github.com/lox/climadash/internal/filters"
	"github.com/lox/climadash/internal/models"
)

func (s *Server) handleAPICities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.cities.Cities(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cities)
}

// PanelResponse is one panel's dataset as JSON.
type PanelResponse struct {
	Index   int         `json:"index"`
	Kind    string      `json:"kind"`
	Status  string      `json:"status"`
	Cities  []string    `json:"cities,omitempty"`
	Start   string      `json:"start,omitempty"`
	End     string      `json:"end,omitempty"`
	Feature []string    `json:"features,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// handleAPIPanel builds one panel's dataset from query parameters using the
// same keys as the dashboard form, e.g. /api/panels/0?kind_0=Line+Chart.
func (s *Server) handleAPIPanel(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(r.PathValue("index"))
	if !ok {
		http.Error(w, "panel index must be 0-"+strconv.Itoa(dashboard.MaxPanels-1), http.StatusBadRequest)
		return
	}
	form := r.URL.Query()
	req := panelRequests(form, index+1)[index]

	res := s.dispatcher.DataOnly().Dispatch(r.Context(), req.Kind, index, filters.FormInput(form), req.RunForecast)

	resp := PanelResponse{
		Index:  index,
		Kind:   req.Kind,
		Status: res.Outcome(),
		Cities: res.Filters.Cities,
		Data:   res.Data,
	}
	if res.Filters.Start != nil {
		resp.Start = res.Filters.Start.Format(models.DateLayout)
	}
	if res.Filters.End != nil {
		resp.End = res.Filters.End.Format(models.DateLayout)
	}
	for _, f := range res.Filters.Features {
		resp.Feature = append(resp.Feature, string(f))
	}

	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleAPIImports(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	runs, err := s.imports.RecentImportRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}
