package analytics

import (
	"sort"
	"time"

	"tareas/api/internal/store"
)

const DefaultOverloadThreshold = 10

type AssigneeLoad struct {
	UserID     string `json:"userId"`
	Open       int    `json:"open"`
	Overdue    int    `json:"overdue"`
	Overloaded bool   `json:"overloaded"`
}

// ComputeLoadDistribution counts open and overdue tasks per assignee. A task
// with several assignees counts once for each. Users with more than
// threshold open tasks are flagged overloaded.
func ComputeLoadDistribution(tasks []store.Task, threshold int, now time.Time) []AssigneeLoad {
	if threshold <= 0 {
		threshold = DefaultOverloadThreshold
	}

	byUser := make(map[string]*AssigneeLoad)
	for _, task := range tasks {
		if task.Closed() {
			continue
		}
		overdue := isOverdue(task, now)
		for _, userID := range task.AssignedTo {
			load, ok := byUser[userID]
			if !ok {
				load = &AssigneeLoad{UserID: userID}
				byUser[userID] = load
			}
			load.Open++
			if overdue {
				load.Overdue++
			}
		}
	}

	out := make([]AssigneeLoad, 0, len(byUser))
	for _, load := range byUser {
		load.Overloaded = load.Open > threshold
		out = append(out, *load)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Open != out[j].Open {
			return out[i].Open > out[j].Open
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
