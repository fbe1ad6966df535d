package analytics

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"tareas/api/internal/store"
)

// Delta is a month-over-month percentage change. It is not Valid when the
// previous month had no tasks and marshals as "n/a" in that case.
type Delta struct {
	Percent float64
	Valid   bool
}

func NewDelta(current, previous int) Delta {
	if previous == 0 {
		return Delta{}
	}
	return Delta{Percent: float64(current-previous) / float64(previous) * 100, Valid: true}
}

func (d Delta) String() string {
	if !d.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(d.rounded(), 'f', -1, 64) + "%"
}

func (d Delta) rounded() float64 {
	return math.Round(d.Percent*10) / 10
}

func (d Delta) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte(`"n/a"`), nil
	}
	return json.Marshal(d.rounded())
}

func (d *Delta) UnmarshalJSON(data []byte) error {
	if string(data) == `"n/a"` || string(data) == "null" {
		*d = Delta{}
		return nil
	}
	var percent float64
	if err := json.Unmarshal(data, &percent); err != nil {
		return err
	}
	*d = Delta{Percent: percent, Valid: true}
	return nil
}

type MonthCounts struct {
	Month    string                   `json:"month"`
	Total    int                      `json:"total"`
	ByStatus map[store.TaskStatus]int `json:"byStatus"`
}

type Comparison struct {
	Current      MonthCounts                `json:"current"`
	Previous     MonthCounts                `json:"previous"`
	TotalDelta   Delta                      `json:"totalDelta"`
	StatusDeltas map[store.TaskStatus]Delta `json:"statusDeltas"`
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// countMonth tallies tasks created in the UTC calendar month starting at start.
func countMonth(tasks []store.Task, start time.Time) MonthCounts {
	end := start.AddDate(0, 1, 0)
	counts := MonthCounts{
		Month:    start.Format("2006-01"),
		ByStatus: make(map[store.TaskStatus]int),
	}
	for _, task := range tasks {
		created := task.CreatedAt.UTC()
		if created.Before(start) || !created.Before(end) {
			continue
		}
		counts.Total++
		counts.ByStatus[task.Status]++
	}
	return counts
}

// ComputeComparatives compares the calendar month containing now against
// the previous one, bucketing tasks by creation month.
func ComputeComparatives(tasks []store.Task, now time.Time) Comparison {
	current := monthStart(now)
	cmp := Comparison{
		Current:      countMonth(tasks, current),
		Previous:     countMonth(tasks, current.AddDate(0, -1, 0)),
		StatusDeltas: make(map[store.TaskStatus]Delta),
	}
	cmp.TotalDelta = NewDelta(cmp.Current.Total, cmp.Previous.Total)
	for _, status := range []store.TaskStatus{store.StatusPendiente, store.StatusEnProceso, store.StatusEnRevision, store.StatusCerrada} {
		cmp.StatusDeltas[status] = NewDelta(cmp.Current.ByStatus[status], cmp.Previous.ByStatus[status])
	}
	return cmp
}

// MonthlySeries returns task creation counts for the last months calendar
// months, oldest first, ending with the month containing now.
func MonthlySeries(tasks []store.Task, months int, now time.Time) []float64 {
	if months <= 0 {
		return []float64{}
	}
	series := make([]float64, months)
	first := monthStart(now).AddDate(0, -(months - 1), 0)
	for i := range series {
		series[i] = float64(countMonth(tasks, first.AddDate(0, i, 0)).Total)
	}
	return series
}
