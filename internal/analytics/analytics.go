// Package analytics derives per-area signals from a snapshot of tasks.
//
// Every function here is pure over its input and returns an empty or
// neutral value for empty input. Caching lives in cache.go and is keyed by
// the caller.
package analytics

import (
	"sort"
	"time"

	"tareas/api/internal/store"
)

// GroupByArea buckets tasks by their area id.
func GroupByArea(tasks []store.Task) map[string][]store.Task {
	out := make(map[string][]store.Task)
	for _, task := range tasks {
		out[task.AreaID] = append(out[task.AreaID], task)
	}
	return out
}

func sortedAreaIDs(tasksByArea map[string][]store.Task) []string {
	ids := make([]string, 0, len(tasksByArea))
	for id := range tasksByArea {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isOverdue(task store.Task, now time.Time) bool {
	return !task.Closed() && !task.DueAt.IsZero() && task.DueAt.Before(now)
}

func ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

type AreaSummary struct {
	AreaID         string  `json:"areaId"`
	Total          int     `json:"total"`
	Open           int     `json:"open"`
	Closed         int     `json:"closed"`
	Overdue        int     `json:"overdue"`
	CompletionRate float64 `json:"completionRate"`
}

// SummarizeAreas reports totals and completion rate per area, ordered by id.
func SummarizeAreas(tasksByArea map[string][]store.Task, now time.Time) []AreaSummary {
	out := make([]AreaSummary, 0, len(tasksByArea))
	for _, areaID := range sortedAreaIDs(tasksByArea) {
		summary := AreaSummary{AreaID: areaID}
		for _, task := range tasksByArea[areaID] {
			summary.Total++
			if task.Closed() {
				summary.Closed++
				continue
			}
			summary.Open++
			if isOverdue(task, now) {
				summary.Overdue++
			}
		}
		summary.CompletionRate = ratio(summary.Closed, summary.Total)
		out = append(out, summary)
	}
	return out
}
