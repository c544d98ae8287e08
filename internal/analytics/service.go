package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

const (
	defaultReportTTL = 10 * time.Minute
	reportKeyPrefix  = "progress:report:"
)

// RecordLoader loads a student's progress record.
type RecordLoader interface {
	Load(ctx context.Context, student string) (*progress.Record, error)
}

// ReportCache stores encoded reports. *cache.Cache implements it.
type ReportCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ServiceConfig holds dependencies for the analytics service.
type ServiceConfig struct {
	Loader    RecordLoader
	Cache     ReportCache      // optional
	ReportTTL time.Duration    // default 10m
	Now       func() time.Time // default time.Now
}

// Service computes reports for a student by name, caching weekly reports
// when a cache is configured.
type Service struct {
	loader    RecordLoader
	cache     ReportCache
	reportTTL time.Duration
	now       func() time.Time
}

// NewService creates an analytics service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.ReportTTL
	if ttl == 0 {
		ttl = defaultReportTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		loader:    cfg.Loader,
		cache:     cfg.Cache,
		reportTTL: ttl,
		now:       now,
	}
}

// WeeklyReport returns the report for student, served from cache when fresh.
// A cached report reflects the record as of its GeneratedAt, which is at most
// ReportTTL old; it is never served once a counted session has left the
// window. Writes through the session engine invalidate it immediately.
func (s *Service) WeeklyReport(ctx context.Context, student string) (WeeklyReport, error) {
	now := s.now()
	if s.cache != nil {
		var cached WeeklyReport
		hit, err := s.cache.GetJSON(ctx, reportKeyPrefix+student, &cached)
		if err != nil {
			slog.Warn("report cache read failed", "student", student, "error", err)
		} else if hit && !cached.Expired(now) {
			return cached, nil
		}
	}

	rec, err := s.loader.Load(ctx, student)
	if err != nil {
		return WeeklyReport{}, fmt.Errorf("weekly report: %w", err)
	}
	report := BuildWeeklyReport(rec, now)
	s.StoreReport(ctx, student, report)
	return report, nil
}

// StoreReport caches report for student until it expires or ReportTTL
// passes, whichever is first.
func (s *Service) StoreReport(ctx context.Context, student string, report WeeklyReport) {
	if s.cache == nil {
		return
	}
	ttl := s.reportTTL
	if !report.ExpiresAt.IsZero() {
		ttl = min(ttl, max(report.ExpiresAt.Sub(report.GeneratedAt), time.Second))
	}
	if err := s.cache.SetJSON(ctx, reportKeyPrefix+student, report, ttl); err != nil {
		slog.Warn("report cache write failed", "student", student, "error", err)
	}
}

// Invalidate drops any cached report for student.
func (s *Service) Invalidate(ctx context.Context, student string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, reportKeyPrefix+student); err != nil {
		slog.Warn("report cache invalidate failed", "student", student, "error", err)
	}
}

// Recommendations returns advice lines for student.
func (s *Service) Recommendations(ctx context.Context, student string) ([]string, error) {
	rec, err := s.loader.Load(ctx, student)
	if err != nil {
		return nil, fmt.Errorf("recommendations: %w", err)
	}
	return BuildRecommendations(rec, s.now()), nil
}

// StudyPlan returns the weekly plan for student.
func (s *Service) StudyPlan(ctx context.Context, student string) (Plan, error) {
	rec, err := s.loader.Load(ctx, student)
	if err != nil {
		return Plan{}, fmt.Errorf("study plan: %w", err)
	}
	return BuildStudyPlan(rec), nil
}

// TopicProgress returns the per-topic table for student.
func (s *Service) TopicProgress(ctx context.Context, student string) ([]TopicSummary, error) {
	rec, err := s.loader.Load(ctx, student)
	if err != nil {
		return nil, fmt.Errorf("topic progress: %w", err)
	}
	return BuildTopicProgress(rec), nil
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}
