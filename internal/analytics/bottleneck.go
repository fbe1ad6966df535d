package analytics

import (
	"sort"
	"time"

	"tareas/api/internal/store"
)

const DefaultBottleneckWindow = 14 * 24 * time.Hour

type Bottleneck struct {
	AreaID string           `json:"areaId"`
	Status store.TaskStatus `json:"status"`
	// Before is the backlog that already existed when the window opened.
	Before int `json:"before"`
	Now    int `json:"now"`
	Growth int `json:"growth"`
}

type backlogKey struct {
	area   string
	status store.TaskStatus
}

// DetectBottlenecks measures, per area and open status, how much the backlog
// grew over the window ending at now. Only growing backlogs are returned,
// largest first; the first element is the bottleneck.
func DetectBottlenecks(tasks []store.Task, now time.Time, window time.Duration) []Bottleneck {
	if window <= 0 {
		window = DefaultBottleneckWindow
	}
	since := now.Add(-window)

	counts := make(map[backlogKey]*Bottleneck)
	for _, task := range tasks {
		if task.Closed() || task.CreatedAt.After(now) {
			continue
		}
		key := backlogKey{area: task.AreaID, status: task.Status}
		b, ok := counts[key]
		if !ok {
			b = &Bottleneck{AreaID: task.AreaID, Status: task.Status}
			counts[key] = b
		}
		b.Now++
		if task.CreatedAt.Before(since) {
			b.Before++
		}
	}

	out := []Bottleneck{}
	for _, b := range counts {
		b.Growth = b.Now - b.Before
		if b.Growth > 0 {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Growth != out[j].Growth {
			return out[i].Growth > out[j].Growth
		}
		if out[i].AreaID != out[j].AreaID {
			return out[i].AreaID < out[j].AreaID
		}
		return out[i].Status < out[j].Status
	})
	return out
}
