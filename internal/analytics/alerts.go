package analytics

import (
	"fmt"
	"sort"
	"time"

	"tareas/api/internal/store"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) base() float64 {
	switch s {
	case SeverityCritical:
		return 300
	case SeverityWarning:
		return 200
	default:
		return 100
	}
}

type AlertKind string

const (
	AlertOverdue  AlertKind = "overdue"
	AlertStagnant AlertKind = "stagnant"
	AlertPending  AlertKind = "pending"
)

type Alert struct {
	AreaID   string    `json:"areaId"`
	Kind     AlertKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Count    int       `json:"count"`
	Total    int       `json:"total"`
	Ratio    float64   `json:"ratio"`
	Score    float64   `json:"score"`
}

type AlertOptions struct {
	// OverdueRatio above which an area is critical.
	OverdueRatio float64
	// PendingRatio above which an area gets a pending warning.
	PendingRatio float64
	// StagnantWindow is how long an area with open work may go without updates.
	StagnantWindow time.Duration
}

func DefaultAlertOptions() AlertOptions {
	return AlertOptions{
		OverdueRatio:   0.30,
		PendingRatio:   0.60,
		StagnantWindow: 7 * 24 * time.Hour,
	}
}

func (o AlertOptions) withDefaults() AlertOptions {
	def := DefaultAlertOptions()
	if o.OverdueRatio <= 0 {
		o.OverdueRatio = def.OverdueRatio
	}
	if o.PendingRatio <= 0 {
		o.PendingRatio = def.PendingRatio
	}
	if o.StagnantWindow <= 0 {
		o.StagnantWindow = def.StagnantWindow
	}
	return o
}

// ComputeAlerts evaluates every area and returns its alerts ordered by
// score, highest first. Ratios are taken over all tasks in the area.
func ComputeAlerts(tasksByArea map[string][]store.Task, now time.Time, opts AlertOptions) []Alert {
	opts = opts.withDefaults()
	alerts := []Alert{}

	for _, areaID := range sortedAreaIDs(tasksByArea) {
		tasks := tasksByArea[areaID]
		total := len(tasks)
		if total == 0 {
			continue
		}

		var overdue, pending, open int
		var lastUpdate time.Time
		for _, task := range tasks {
			if !task.Closed() {
				open++
			}
			if task.Status == store.StatusPendiente {
				pending++
			}
			if isOverdue(task, now) {
				overdue++
			}
			if task.UpdatedAt.After(lastUpdate) {
				lastUpdate = task.UpdatedAt
			}
		}

		if overdue > 0 {
			r := ratio(overdue, total)
			severity := SeverityInfo
			if r > opts.OverdueRatio {
				severity = SeverityCritical
			}
			alerts = append(alerts, newAlert(areaID, AlertOverdue, severity, overdue, total,
				fmt.Sprintf("%d de %d tareas vencidas (%.0f%%)", overdue, total, r*100)))
		}

		if open > 0 && now.Sub(lastUpdate) >= opts.StagnantWindow {
			days := int(now.Sub(lastUpdate) / (24 * time.Hour))
			alerts = append(alerts, newAlert(areaID, AlertStagnant, SeverityWarning, open, total,
				fmt.Sprintf("sin actividad en %d días con %d tareas abiertas", days, open)))
		}

		if r := ratio(pending, total); r > opts.PendingRatio {
			alerts = append(alerts, newAlert(areaID, AlertPending, SeverityWarning, pending, total,
				fmt.Sprintf("%.0f%% de las tareas siguen pendientes", r*100)))
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.AreaID != b.AreaID {
			return a.AreaID < b.AreaID
		}
		return a.Kind < b.Kind
	})
	return alerts
}

func newAlert(areaID string, kind AlertKind, severity Severity, count, total int, message string) Alert {
	r := ratio(count, total)
	return Alert{
		AreaID:   areaID,
		Kind:     kind,
		Severity: severity,
		Message:  message,
		Count:    count,
		Total:    total,
		Ratio:    r,
		Score:    severity.base() + r*100,
	}
}
