package app

import (
	"context"
	"fmt"
	"log"

	"tareas/api/internal/analytics"
	"tareas/api/internal/rbac"
	"tareas/api/internal/report"
	"tareas/api/internal/store"
)

const (
	defaultForecastMonths = 6
	maxForecastMonths     = 24
)

type ForecastResult struct {
	Months   int                `json:"months"`
	Series   []float64          `json:"series"`
	Forecast analytics.Forecast `json:"forecast"`
}

func analyticsScope(areaID string) string {
	if areaID == "" {
		return "all"
	}
	return areaID
}

// analyticsSnapshot loads every task, closed ones included, optionally
// restricted to one area.
func (s *Service) analyticsSnapshot(ctx context.Context, session Session, areaID string) ([]store.Task, error) {
	if err := s.authorize(session, rbac.ActionAnalyticsView); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, store.TaskFilter{AreaID: areaID, IncludeClosed: true})
}

func cachedAnalytics[T any](ctx context.Context, s *Service, session Session, kind, areaID string, compute func([]store.Task) T) (T, error) {
	var zero T
	if err := s.authorize(session, rbac.ActionAnalyticsView); err != nil {
		return zero, err
	}
	key := kind + ":" + analyticsScope(areaID)
	return analytics.Remember(ctx, s.cache, key, func() (T, error) {
		tasks, err := s.analyticsSnapshot(ctx, session, areaID)
		if err != nil {
			return zero, err
		}
		return compute(tasks), nil
	})
}

func (s *Service) Alerts(ctx context.Context, session Session, areaID string) ([]analytics.Alert, error) {
	now := s.now()
	return cachedAnalytics(ctx, s, session, "alerts", areaID, func(tasks []store.Task) []analytics.Alert {
		return analytics.ComputeAlerts(analytics.GroupByArea(tasks), now, analytics.DefaultAlertOptions())
	})
}

func (s *Service) Comparatives(ctx context.Context, session Session, areaID string) (analytics.Comparison, error) {
	now := s.now()
	return cachedAnalytics(ctx, s, session, "comparatives", areaID, func(tasks []store.Task) analytics.Comparison {
		return analytics.ComputeComparatives(tasks, now)
	})
}

func (s *Service) Bottlenecks(ctx context.Context, session Session, areaID string) ([]analytics.Bottleneck, error) {
	now := s.now()
	return cachedAnalytics(ctx, s, session, "bottlenecks", areaID, func(tasks []store.Task) []analytics.Bottleneck {
		return analytics.DetectBottlenecks(tasks, now, analytics.DefaultBottleneckWindow)
	})
}

// Forecast predicts next month's task volume from the last months months.
func (s *Service) Forecast(ctx context.Context, session Session, areaID string, months int) (ForecastResult, error) {
	if months <= 0 {
		months = defaultForecastMonths
	}
	if months > maxForecastMonths {
		months = maxForecastMonths
	}
	now := s.now()
	kind := fmt.Sprintf("forecast:%d", months)
	return cachedAnalytics(ctx, s, session, kind, areaID, func(tasks []store.Task) ForecastResult {
		series := analytics.MonthlySeries(tasks, months, now)
		return ForecastResult{Months: months, Series: series, Forecast: analytics.PredictNextPeriod(series)}
	})
}

func (s *Service) Load(ctx context.Context, session Session, areaID string) ([]analytics.AssigneeLoad, error) {
	now := s.now()
	threshold := s.cfg.OverloadThreshold
	return cachedAnalytics(ctx, s, session, "load", areaID, func(tasks []store.Task) []analytics.AssigneeLoad {
		return analytics.ComputeLoadDistribution(tasks, threshold, now)
	})
}

func (s *Service) Summary(ctx context.Context, session Session, areaID string) ([]analytics.AreaSummary, error) {
	now := s.now()
	return cachedAnalytics(ctx, s, session, "summary", areaID, func(tasks []store.Task) []analytics.AreaSummary {
		return analytics.SummarizeAreas(analytics.GroupByArea(tasks), now)
	})
}

// InvalidateAnalytics drops cached results matching pattern, or all of them.
func (s *Service) InvalidateAnalytics(ctx context.Context, session Session, pattern string) (int, error) {
	if err := s.authorize(session, rbac.ActionAreaManage); err != nil {
		return 0, err
	}
	if pattern == "" {
		pattern = "*"
	}
	n, err := s.cache.InvalidatePattern(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("invalidate analytics cache: %w", err)
	}
	log.Printf("analytics: %s invalidated %d entries matching %q", session.UserID, n, pattern)
	return n, nil
}

// Report renders the area report for the current snapshot. It is never cached.
func (s *Service) Report(ctx context.Context, session Session, areaID string, format report.Format) (*report.Result, error) {
	if s.reports == nil {
		return nil, unavailable("REPORTS_UNAVAILABLE", "Reports are not configured")
	}
	tasks, err := s.analyticsSnapshot(ctx, session, areaID)
	if err != nil {
		return nil, err
	}
	areas, err := s.store.ListAreas(ctx, true)
	if err != nil {
		return nil, err
	}
	if areaID != "" {
		filtered := areas[:0]
		for _, area := range areas {
			if area.ID == areaID {
				filtered = append(filtered, area)
			}
		}
		areas = filtered
	}
	return s.reports.Build(ctx, report.Request{
		Format:    format,
		Areas:     areas,
		Tasks:     tasks,
		Threshold: s.cfg.OverloadThreshold,
		Now:       s.now(),
	})
}
