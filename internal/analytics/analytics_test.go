package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"tareas/api/internal/store"
)

var now = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

type taskOpt func(*store.Task)

func dueIn(d time.Duration) taskOpt {
	return func(t *store.Task) { t.DueAt = now.Add(d) }
}

func withStatus(s store.TaskStatus) taskOpt {
	return func(t *store.Task) { t.Status = s }
}

func createdAt(at time.Time) taskOpt {
	return func(t *store.Task) { t.CreatedAt = at }
}

func updatedAt(at time.Time) taskOpt {
	return func(t *store.Task) { t.UpdatedAt = at }
}

func assigned(ids ...string) taskOpt {
	return func(t *store.Task) { t.AssignedTo = store.Assignees(ids) }
}

var seq int

func newTask(area string, opts ...taskOpt) store.Task {
	seq++
	task := store.Task{
		ID:         fmt.Sprintf("tsk_%03d", seq),
		Title:      "tarea",
		Status:     store.StatusEnProceso,
		Priority:   store.PriorityMedia,
		AreaID:     area,
		AssignedTo: store.Assignees{"usr_a"},
		DueAt:      now.Add(72 * time.Hour),
		CreatedAt:  now.Add(-24 * time.Hour),
		UpdatedAt:  now.Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(&task)
	}
	return task
}

func areaWithOverdue(area string, total, overdue int) []store.Task {
	tasks := make([]store.Task, 0, total)
	for i := 0; i < total; i++ {
		if i < overdue {
			tasks = append(tasks, newTask(area, dueIn(-2*time.Hour)))
			continue
		}
		tasks = append(tasks, newTask(area))
	}
	return tasks
}

func findAlert(alerts []Alert, area string, kind AlertKind) (Alert, bool) {
	for _, a := range alerts {
		if a.AreaID == area && a.Kind == kind {
			return a, true
		}
	}
	return Alert{}, false
}

func TestComputeAlertsOverdueThreshold(t *testing.T) {
	alerts := ComputeAlerts(map[string][]store.Task{"juridica": areaWithOverdue("juridica", 10, 4)}, now, AlertOptions{})
	a, ok := findAlert(alerts, "juridica", AlertOverdue)
	if !ok || a.Severity != SeverityCritical {
		t.Fatalf("4/10 overdue: alert = %+v, want critical", a)
	}

	alerts = ComputeAlerts(map[string][]store.Task{"juridica": areaWithOverdue("juridica", 10, 2)}, now, AlertOptions{})
	a, ok = findAlert(alerts, "juridica", AlertOverdue)
	if !ok {
		t.Fatal("2/10 overdue: expected info alert")
	}
	if a.Severity == SeverityCritical {
		t.Fatalf("2/10 overdue: severity = %s, want non-critical", a.Severity)
	}

	alerts = ComputeAlerts(map[string][]store.Task{"juridica": areaWithOverdue("juridica", 10, 3)}, now, AlertOptions{})
	a, _ = findAlert(alerts, "juridica", AlertOverdue)
	if a.Severity != SeverityInfo {
		t.Fatalf("3/10 overdue sits on the threshold: severity = %s, want info", a.Severity)
	}
}

func TestComputeAlertsClosedTasksAreNotOverdue(t *testing.T) {
	tasks := []store.Task{
		newTask("obras", dueIn(-48*time.Hour), withStatus(store.StatusCerrada)),
		newTask("obras"),
	}
	alerts := ComputeAlerts(map[string][]store.Task{"obras": tasks}, now, AlertOptions{})
	if _, ok := findAlert(alerts, "obras", AlertOverdue); ok {
		t.Fatal("closed task must not raise overdue alert")
	}
}

func TestComputeAlertsStagnantAndPending(t *testing.T) {
	old := now.Add(-8 * 24 * time.Hour)
	tasks := []store.Task{
		newTask("salud", withStatus(store.StatusPendiente), updatedAt(old)),
		newTask("salud", withStatus(store.StatusPendiente), updatedAt(old)),
		newTask("salud", withStatus(store.StatusPendiente), updatedAt(old)),
		newTask("salud", withStatus(store.StatusEnProceso), updatedAt(old)),
	}
	alerts := ComputeAlerts(map[string][]store.Task{"salud": tasks}, now, AlertOptions{})

	stagnant, ok := findAlert(alerts, "salud", AlertStagnant)
	if !ok || stagnant.Severity != SeverityWarning {
		t.Fatalf("stagnant alert = %+v", stagnant)
	}
	pending, ok := findAlert(alerts, "salud", AlertPending)
	if !ok || pending.Count != 3 {
		t.Fatalf("pending alert = %+v", pending)
	}

	fresh := []store.Task{newTask("salud", withStatus(store.StatusEnProceso))}
	if got := ComputeAlerts(map[string][]store.Task{"salud": fresh}, now, AlertOptions{}); len(got) != 0 {
		t.Fatalf("fresh area alerts = %+v, want none", got)
	}
}

func TestComputeAlertsSortedByScore(t *testing.T) {
	byArea := map[string][]store.Task{
		"a": areaWithOverdue("a", 10, 1),
		"b": areaWithOverdue("b", 10, 5),
		"c": areaWithOverdue("c", 10, 9),
	}
	alerts := ComputeAlerts(byArea, now, AlertOptions{})
	if len(alerts) < 3 {
		t.Fatalf("alerts = %d, want at least 3", len(alerts))
	}
	for i := 1; i < len(alerts); i++ {
		if alerts[i].Score > alerts[i-1].Score {
			t.Fatalf("alerts not sorted: %v before %v", alerts[i-1].Score, alerts[i].Score)
		}
	}
	if alerts[0].AreaID != "c" {
		t.Fatalf("top alert area = %s, want c", alerts[0].AreaID)
	}
}

func TestComputeAlertsEmpty(t *testing.T) {
	if got := ComputeAlerts(nil, now, AlertOptions{}); len(got) != 0 {
		t.Fatalf("ComputeAlerts(nil) = %v", got)
	}
	if got := ComputeAlerts(map[string][]store.Task{"vacia": {}}, now, AlertOptions{}); len(got) != 0 {
		t.Fatalf("ComputeAlerts(empty area) = %v", got)
	}
}

func TestComputeComparatives(t *testing.T) {
	thisMonth := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	tasks := []store.Task{
		newTask("x", createdAt(thisMonth), withStatus(store.StatusPendiente)),
		newTask("x", createdAt(thisMonth), withStatus(store.StatusPendiente)),
		newTask("x", createdAt(thisMonth), withStatus(store.StatusCerrada)),
		newTask("x", createdAt(lastMonth), withStatus(store.StatusPendiente)),
		newTask("x", createdAt(lastMonth), withStatus(store.StatusEnProceso)),
	}

	cmp := ComputeComparatives(tasks, now)
	if cmp.Current.Month != "2026-05" || cmp.Previous.Month != "2026-04" {
		t.Fatalf("months = %s/%s", cmp.Current.Month, cmp.Previous.Month)
	}
	if !cmp.TotalDelta.Valid || cmp.TotalDelta.Percent != 50 {
		t.Fatalf("TotalDelta = %+v, want +50%%", cmp.TotalDelta)
	}
	if cmp.StatusDeltas[store.StatusPendiente].Percent != 100 {
		t.Fatalf("pendiente delta = %+v", cmp.StatusDeltas[store.StatusPendiente])
	}
	closed := cmp.StatusDeltas[store.StatusCerrada]
	if closed.Valid {
		t.Fatalf("cerrada delta with empty previous month = %+v, want n/a", closed)
	}

	raw, err := json.Marshal(cmp.StatusDeltas)
	if err != nil {
		t.Fatalf("marshal deltas: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal deltas: %v", err)
	}
	if decoded["cerrada"] != "n/a" {
		t.Fatalf("cerrada JSON = %v, want n/a", decoded["cerrada"])
	}
	if decoded["en_proceso"] != float64(-100) {
		t.Fatalf("en_proceso JSON = %v, want -100", decoded["en_proceso"])
	}
}

func TestComputeComparativesEmpty(t *testing.T) {
	cmp := ComputeComparatives(nil, now)
	if cmp.TotalDelta.Valid {
		t.Fatal("empty input delta must be n/a")
	}
	if cmp.TotalDelta.String() != "n/a" {
		t.Fatalf("String() = %q", cmp.TotalDelta.String())
	}
}

func TestMonthlySeries(t *testing.T) {
	tasks := []store.Task{
		newTask("x", createdAt(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))),
		newTask("x", createdAt(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))),
		newTask("x", createdAt(time.Date(2026, 5, 19, 0, 0, 0, 0, time.UTC))),
	}
	got := MonthlySeries(tasks, 3, now)
	want := []float64{1, 0, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MonthlySeries() = %v, want %v", got, want)
		}
	}
}

func TestDetectBottlenecks(t *testing.T) {
	recent := now.Add(-2 * 24 * time.Hour)
	old := now.Add(-30 * 24 * time.Hour)
	tasks := []store.Task{
		newTask("obras", withStatus(store.StatusEnRevision), createdAt(recent)),
		newTask("obras", withStatus(store.StatusEnRevision), createdAt(recent)),
		newTask("obras", withStatus(store.StatusEnRevision), createdAt(recent)),
		newTask("obras", withStatus(store.StatusPendiente), createdAt(old)),
		newTask("salud", withStatus(store.StatusPendiente), createdAt(recent)),
		newTask("salud", withStatus(store.StatusCerrada), createdAt(recent)),
	}

	got := DetectBottlenecks(tasks, now, 7*24*time.Hour)
	if len(got) != 2 {
		t.Fatalf("DetectBottlenecks() = %+v, want 2 entries", got)
	}
	if got[0].AreaID != "obras" || got[0].Status != store.StatusEnRevision || got[0].Growth != 3 {
		t.Fatalf("bottleneck = %+v", got[0])
	}

	if got := DetectBottlenecks([]store.Task{newTask("x", createdAt(old))}, now, 7*24*time.Hour); len(got) != 0 {
		t.Fatalf("no growth should yield empty, got %+v", got)
	}
}

func TestPredictNextPeriod(t *testing.T) {
	cases := []struct {
		name       string
		series     []float64
		sufficient bool
		next       float64
		trend      Trend
	}{
		{name: "empty", series: nil},
		{name: "single point", series: []float64{7}},
		{name: "rising", series: []float64{1, 2, 3, 4}, sufficient: true, next: 5, trend: TrendUp},
		{name: "flat", series: []float64{3, 3, 3}, sufficient: true, next: 3, trend: TrendFlat},
		{name: "noisy rise", series: []float64{2, 4, 5, 4, 5}, sufficient: true, next: 5.8, trend: TrendUp},
		{name: "clamped at zero", series: []float64{9, 5, 1}, sufficient: true, next: 0, trend: TrendDown},
		{name: "non finite", series: []float64{1, math.Inf(1)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PredictNextPeriod(tc.series)
			if got.Sufficient != tc.sufficient {
				t.Fatalf("Sufficient = %v, want %v", got.Sufficient, tc.sufficient)
			}
			if !tc.sufficient {
				if got.Reason != "insufficient data" {
					t.Fatalf("Reason = %q", got.Reason)
				}
				if math.IsNaN(got.Next) || math.IsInf(got.Next, 0) {
					t.Fatalf("Next = %v, want finite", got.Next)
				}
				return
			}
			if math.Abs(got.Next-tc.next) > 1e-9 {
				t.Fatalf("Next = %v, want %v", got.Next, tc.next)
			}
			if got.Trend != tc.trend {
				t.Fatalf("Trend = %s, want %s", got.Trend, tc.trend)
			}
		})
	}
}

func TestComputeLoadDistribution(t *testing.T) {
	tasks := []store.Task{
		newTask("x", assigned("ana", "beto")),
		newTask("x", assigned("ana"), dueIn(-time.Hour)),
		newTask("x", assigned("ana")),
		newTask("x", assigned("beto"), withStatus(store.StatusCerrada)),
	}
	got := ComputeLoadDistribution(tasks, 2, now)
	if len(got) != 2 {
		t.Fatalf("loads = %+v", got)
	}
	if got[0].UserID != "ana" || got[0].Open != 3 || got[0].Overdue != 1 || !got[0].Overloaded {
		t.Fatalf("ana = %+v", got[0])
	}
	if got[1].UserID != "beto" || got[1].Open != 1 || got[1].Overloaded {
		t.Fatalf("beto = %+v", got[1])
	}
	if got := ComputeLoadDistribution(nil, 0, now); len(got) != 0 {
		t.Fatalf("empty input = %+v", got)
	}
}

func TestSummarizeAreas(t *testing.T) {
	byArea := GroupByArea([]store.Task{
		newTask("b", withStatus(store.StatusCerrada)),
		newTask("b", dueIn(-time.Hour)),
		newTask("a"),
	})
	got := SummarizeAreas(byArea, now)
	if len(got) != 2 || got[0].AreaID != "a" {
		t.Fatalf("summaries = %+v", got)
	}
	b := got[1]
	if b.Total != 2 || b.Closed != 1 || b.Overdue != 1 || b.CompletionRate != 0.5 {
		t.Fatalf("area b = %+v", b)
	}
}
