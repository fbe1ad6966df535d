package search

import (
	"context"
	"time"

	"tareas/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Snippet    string   `json:"snippet"`
	AreaID     string   `json:"area"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	AssignedTo []string `json:"assignedTo"`
	DueAt      int64    `json:"dueAt"`
}

// Query describes a search request. When Restricted is set only tasks
// assigned to ViewerID are returned.
type Query struct {
	Text       string
	AreaID     string
	Status     string
	ViewerID   string
	Restricted bool
	Limit      int
	Offset     int
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return 20
	case q.Limit > 100:
		return 100
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push tasks into a search index.
type Indexer interface {
	IndexTasks(records []TaskRecord) error
}

// TaskRecord is the data we index for a task. DueAt is a unix timestamp so
// the index can sort on it.
type TaskRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AreaID      string   `json:"area"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	AssignedTo  []string `json:"assignedTo"`
	DueAt       int64    `json:"dueAt"`
}

// NewTaskRecord projects a stored task onto the indexed shape.
func NewTaskRecord(task store.Task) TaskRecord {
	return TaskRecord{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		AreaID:      task.AreaID,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		AssignedTo:  append([]string(nil), task.AssignedTo...),
		DueAt:       dueAtUnix(task.DueAt),
	}
}

func dueAtUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}
