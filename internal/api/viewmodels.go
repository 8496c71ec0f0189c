package api

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/lox/climadash/internal/dashboard"
	"github.com/lox/climadash/internal/filters"
	"github.com/lox/climadash/internal/models"
)

// IndexData is the dashboard page.
type IndexData struct {
	Panels    []PanelView
	Cities    []string
	Kinds     []string
	Features  []string
	CanAdd    bool
	CanRemove bool
	State     string // encoded form state carried through add/remove
	Error     string
}

// PanelView is one panel's widgets and rendered output.
type PanelView struct {
	Index  int
	Kind   string
	Result *dashboard.Result
}

func (p PanelView) MultiCity() bool    { return models.Kind(p.Kind).MultiCity() }
func (p PanelView) MultiFeature() bool { return models.Kind(p.Kind).MultiFeature() }
func (p PanelView) HasDates() bool     { return models.Kind(p.Kind).NeedsDateRange() }
func (p PanelView) IsForecast() bool   { return models.Kind(p.Kind) == models.KindForecast }

// panelRequests reads each panel's kind and forecast action from the form.
func panelRequests(form url.Values, n int) []dashboard.PanelRequest {
	reqs := make([]dashboard.PanelRequest, n)
	for i := range reqs {
		kind := form.Get(filters.Key("kind", i))
		if kind == "" {
			kind = string(models.KindBar)
		}
		reqs[i] = dashboard.PanelRequest{
			Index:       i,
			Kind:        kind,
			RunForecast: form.Get(filters.Key("forecast", i)) == "run",
		}
	}
	return reqs
}

// carriedState strips one-shot actions so they do not replay after a
// redirect.
func carriedState(form url.Values) url.Values {
	out := url.Values{}
	for k, v := range form {
		if k == "state" {
			continue
		}
		if strings.HasPrefix(k, "forecast_") {
			continue
		}
		out[k] = v
	}
	return out
}

func kindNames() []string {
	out := make([]string, len(models.Kinds))
	for i, k := range models.Kinds {
		out[i] = string(k)
	}
	return out
}

func parseIndex(s string) (int, bool) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || i >= dashboard.MaxPanels {
		return 0, false
	}
	return i, true
}
