// Package categorize sorts open tasks into urgency buckets relative to now.
package categorize

import (
	"sort"
	"time"

	"tareas/api/internal/rbac"
	"tareas/api/internal/store"
)

type Bucket string

const (
	BucketOverdue  Bucket = "overdue"
	BucketUrgent   Bucket = "urgent"
	BucketSoonDue  Bucket = "soonDue"
	BucketUpcoming Bucket = "upcoming"
	// BucketNone marks tasks due 7 days or more from now.
	BucketNone Bucket = ""
)

const (
	UrgentWindow   = 6 * time.Hour
	SoonDueWindow  = 24 * time.Hour
	UpcomingWindow = 7 * 24 * time.Hour
)

type Entry struct {
	Task         store.Task `json:"task"`
	HoursOverdue int        `json:"hoursOverdue,omitempty"`
	HoursLeft    int        `json:"hoursLeft,omitempty"`
	DaysLeft     int        `json:"daysLeft,omitempty"`
}

// Rejected is a task that could not be placed because its data is invalid.
type Rejected struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason"`
}

type Buckets struct {
	Overdue  []Entry    `json:"overdue"`
	Urgent   []Entry    `json:"urgent"`
	SoonDue  []Entry    `json:"soonDue"`
	Upcoming []Entry    `json:"upcoming"`
	Invalid  []Rejected `json:"invalid,omitempty"`
}

func (b Buckets) Total() int {
	return len(b.Overdue) + len(b.Urgent) + len(b.SoonDue) + len(b.Upcoming)
}

// Classify places a due date relative to now. Comparisons are strict, so a
// task due in exactly 6h is soonDue and one due in exactly 24h is upcoming.
func Classify(dueAt, now time.Time) Bucket {
	diff := dueAt.Sub(now)
	switch {
	case diff < 0:
		return BucketOverdue
	case diff < UrgentWindow:
		return BucketUrgent
	case diff < SoonDueWindow:
		return BucketSoonDue
	case diff < UpcomingWindow:
		return BucketUpcoming
	default:
		return BucketNone
	}
}

// Categorize buckets the open tasks visible to viewer. Closed tasks never
// appear, whatever the role. Each bucket is ordered by due date, then id.
func Categorize(tasks []store.Task, viewer string, role rbac.Role, now time.Time) Buckets {
	out := Buckets{
		Overdue:  []Entry{},
		Urgent:   []Entry{},
		SoonDue:  []Entry{},
		Upcoming: []Entry{},
	}
	seesAll := rbac.SeesAllTasks(role)

	for _, task := range tasks {
		if task.Closed() {
			continue
		}
		if !seesAll && !task.AssignedTo.Contains(viewer) {
			continue
		}
		if task.DueAt.IsZero() {
			out.Invalid = append(out.Invalid, Rejected{TaskID: task.ID, Reason: "missing dueAt"})
			continue
		}

		diff := task.DueAt.Sub(now)
		entry := Entry{Task: task}
		switch Classify(task.DueAt, now) {
		case BucketOverdue:
			entry.HoursOverdue = int(-diff / time.Hour)
			out.Overdue = append(out.Overdue, entry)
		case BucketUrgent:
			entry.HoursLeft = int(diff / time.Hour)
			out.Urgent = append(out.Urgent, entry)
		case BucketSoonDue:
			entry.HoursLeft = int(diff / time.Hour)
			out.SoonDue = append(out.SoonDue, entry)
		case BucketUpcoming:
			entry.HoursLeft = int(diff / time.Hour)
			entry.DaysLeft = int(diff / (24 * time.Hour))
			out.Upcoming = append(out.Upcoming, entry)
		}
	}

	for _, bucket := range [][]Entry{out.Overdue, out.Urgent, out.SoonDue, out.Upcoming} {
		sortEntries(bucket)
	}
	return out
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Task, entries[j].Task
		if !a.DueAt.Equal(b.DueAt) {
			return a.DueAt.Before(b.DueAt)
		}
		return a.ID < b.ID
	})
}
