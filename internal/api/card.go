package api

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/lox/climadash/internal/dataset"
	"github.com/lox/climadash/internal/models"
	"github.com/lox/climadash/internal/render"
)

// CoverageReporter summarizes the warehouse for the link preview.
type CoverageReporter interface {
	Coverage(ctx context.Context) (*dataset.Coverage, error)
}

// cardCache holds the generated preview image for a short period.
type cardCache struct {
	mu        sync.RWMutex
	data      []byte
	expiresAt time.Time
	ttl       time.Duration
}

func (c *cardCache) get() ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *cardCache) set(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = data
	c.expiresAt = time.Now().Add(c.ttl)
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	data, ok := s.card.get()
	if !ok {
		var err error
		data, err = s.generateCard(r.Context())
		if err != nil {
			log.Printf("api: generate preview card: %v", err)
			http.Error(w, "preview unavailable", http.StatusServiceUnavailable)
			return
		}
		s.card.set(data)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=600")
	w.Write(data)
}

func (s *Server) generateCard(ctx context.Context) ([]byte, error) {
	cov, err := s.coverage.Coverage(ctx)
	if err != nil {
		return nil, err
	}

	card := render.CardData{Title: "Climate Dashboard", Headline: "No data yet"}
	if cov.Cities > 0 {
		card.Headline = fmt.Sprintf("%d cities", cov.Cities)
		if cov.Cities == 1 {
			card.Headline = "1 city"
		}
		card.Detail = fmt.Sprintf("Daily history %s to %s",
			cov.First.Format(models.DateLayout), cov.Last.Format(models.DateLayout))
	}

	var buf bytes.Buffer
	if err := render.Card(&buf, card); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
