// Package scheduler runs the periodic progress digest.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/p-n-ai/pai-progress/internal/analytics"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

const (
	DefaultInterval = 24 * time.Hour
	// InactiveAfterDays matches the regular-practice recommendation.
	InactiveAfterDays = 7
	runTimeout        = 5 * time.Minute
)

// StudentLister lists known students.
type StudentLister interface {
	Students(ctx context.Context) ([]string, error)
}

// Config holds dependencies for the digest scheduler.
type Config struct {
	Students  StudentLister
	Loader    analytics.RecordLoader
	Analytics *analytics.Service
	Interval  time.Duration // default 24h
}

// Digest is the outcome of one digest run.
type Digest struct {
	Students int      `json:"students"`
	Reports  int      `json:"reports"`
	Inactive []string `json:"inactive"`
	Failed   []string `json:"failed"`
}

// Scheduler warms the weekly report cache for every student and flags the
// ones who stopped practicing.
type Scheduler struct {
	cron      *gocron.Scheduler
	students  StudentLister
	loader    analytics.RecordLoader
	analytics *analytics.Service
	interval  time.Duration
}

// New creates a scheduler. Call Start to begin running jobs.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	return &Scheduler{
		cron:      cron,
		students:  cfg.Students,
		loader:    cfg.Loader,
		analytics: cfg.Analytics,
		interval:  interval,
	}
}

// Start schedules the digest job and runs it in the background. The first
// run happens immediately.
func (s *Scheduler) Start() error {
	_, err := s.cron.Every(s.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			slog.Error("progress digest failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule digest: %w", err)
	}
	s.cron.StartAsync()
	slog.Info("progress digest scheduled", "interval", s.interval)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunOnce runs the digest for every student. A failure for one student is
// logged and does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) (Digest, error) {
	names, err := s.students.Students(ctx)
	if err != nil {
		return Digest{}, fmt.Errorf("list students: %w", err)
	}

	d := Digest{Students: len(names), Inactive: []string{}, Failed: []string{}}
	now := s.analytics.Now()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return d, err
		}

		rec, err := s.loader.Load(ctx, name)
		if err != nil {
			slog.Warn("digest load failed", "student", name, "error", err)
			d.Failed = append(d.Failed, name)
			continue
		}
		report := analytics.BuildWeeklyReport(rec, now)
		s.analytics.StoreReport(ctx, name, report)
		d.Reports++

		if days, ok := inactiveDays(rec, now); ok {
			slog.Info("student inactive", "student", name, "days_since_last_session", days)
			d.Inactive = append(d.Inactive, name)
		}

		slog.Debug("digest report",
			"student", name,
			"sessions_this_week", report.SessionsCount,
			"active_topics", report.ActiveTopics,
		)
	}

	slog.Info("progress digest complete",
		"students", d.Students,
		"reports", d.Reports,
		"inactive", len(d.Inactive),
		"failed", len(d.Failed),
	)
	return d, nil
}

func inactiveDays(rec *progress.Record, now time.Time) (int, bool) {
	last, ok := rec.LastSession()
	if !ok {
		return 0, false
	}
	days := analytics.DaysSince(last.Date, now)
	return days, days > InactiveAfterDays
}
