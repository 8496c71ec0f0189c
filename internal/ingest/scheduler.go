package ingest

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Purger evicts expired cache entries and reports how many were removed.
type Purger interface {
	Purge() int
}

// Expirer drops idle dashboard sessions.
type Expirer interface {
	Expire() int
}

type SchedulerOptions struct {
	CachePurge    time.Duration
	SessionExpiry time.Duration

	// HistorySource, when set, is re-imported every ImportInterval.
	HistorySource  Source
	ImportInterval time.Duration
	// RebuildClimatology recomputes climatology after each re-import.
	RebuildClimatology bool

	// PayloadRetention, when positive, bounds how long archived exports
	// are kept.
	PayloadRetention time.Duration
}

// Scheduler runs the background housekeeping jobs for a serving process.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cache     Purger
	sessions  Expirer
	importer  *Importer
	opts      SchedulerOptions
}

func NewScheduler(cache Purger, sessions Expirer, importer *Importer, opts SchedulerOptions) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		cache:     cache,
		sessions:  sessions,
		importer:  importer,
		opts:      opts,
	}
}

// Start registers the jobs and starts the scheduler in the background.
func (s *Scheduler) Start() error {
	if s.cache != nil {
		if _, err := s.scheduler.Every(minutes(s.opts.CachePurge, 10)).Minutes().Do(s.purgeCache); err != nil {
			return err
		}
	}
	if s.sessions != nil {
		if _, err := s.scheduler.Every(minutes(s.opts.SessionExpiry, 5)).Minutes().Do(s.expireSessions); err != nil {
			return err
		}
	}
	if s.importer != nil && s.opts.HistorySource != nil {
		log.Printf("scheduler: re-importing %s every %s", s.opts.HistorySource.Name(), s.opts.ImportInterval)
		if _, err := s.scheduler.Every(minutes(s.opts.ImportInterval, 24*60)).Minutes().WaitForSchedule().Do(s.reimport); err != nil {
			return err
		}
	}

	if s.importer != nil && s.opts.PayloadRetention > 0 {
		if _, err := s.scheduler.Every(1).Day().At("03:30").Do(s.cleanupPayloads); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	log.Printf("scheduler: started with %d jobs", len(s.scheduler.Jobs()))
	return nil
}

func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) purgeCache() {
	if n := s.cache.Purge(); n > 0 {
		log.Printf("scheduler: purged %d cached results", n)
	}
}

func (s *Scheduler) expireSessions() {
	if n := s.sessions.Expire(); n > 0 {
		log.Printf("scheduler: expired %d idle sessions", n)
	}
}

func (s *Scheduler) reimport() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := s.importer.ImportHistory(ctx, s.opts.HistorySource, s.opts.RebuildClimatology); err != nil {
		log.Printf("scheduler: re-import failed: %v", err)
	}
}

func (s *Scheduler) cleanupPayloads() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.importer.CleanupPayloads(ctx, s.opts.PayloadRetention)
	if err != nil {
		log.Printf("scheduler: payload cleanup failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("scheduler: deleted %d archived exports", n)
	}
}

func minutes(d time.Duration, fallback int) int {
	m := int(d.Minutes())
	if m <= 0 {
		return fallback
	}
	return m
}
