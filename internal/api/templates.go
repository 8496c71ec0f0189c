package api

import (
	"embed"
	"encoding/base64"
	"html/template"
	"slices"
	"time"

	"github.com/lox/climadash/internal/filters"
	"github.com/lox/climadash/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates creates and parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"key": filters.Key,
		"pngURI": func(b []byte) template.URL {
			return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(b))
		},
		"date": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format(models.DateLayout)
		},
		"contains": func(list []string, v string) bool {
			return slices.Contains(list, v)
		},
		"hasFeature": func(list []models.Feature, v string) bool {
			return slices.Contains(list, models.Feature(v))
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
