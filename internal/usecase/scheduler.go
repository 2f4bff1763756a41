package usecase

import (
	"context"
	"log/slog"
	"time"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

// Crawler is the part of Pipeline the scheduler drives.
type Crawler interface {
	CrawlAll(ctx context.Context) (domain.CrawlStats, error)
}

// Scheduler wires the cron driver with the crawl use case.
type Scheduler struct {
	driver  ports.Scheduler
	crawler Crawler
	logger  *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring crawls.
func NewScheduler(driver ports.Scheduler, crawler Crawler, log *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, crawler: crawler, logger: log}
}

// Start registers the crawl with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.crawler == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if s.logger != nil {
			s.logger.Info("scheduled crawl", "trigger", trigger)
		}
		if _, err := s.crawler.CrawlAll(ctx); err != nil && s.logger != nil {
			s.logger.Error("scheduled crawl failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
