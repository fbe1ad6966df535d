package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"tareas/api/internal/notify"
	"tareas/api/internal/store"
)

var activityNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeTaskStore struct {
	listDueSoonFn func(from, to time.Time) ([]store.Task, error)
	tasks         map[string]store.Task
	marked        []string
}

func (f *fakeTaskStore) ListDueSoonTasks(_ context.Context, from, to time.Time) ([]store.Task, error) {
	return f.listDueSoonFn(from, to)
}

func (f *fakeTaskStore) GetTask(_ context.Context, id string) (store.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return store.Task{}, errors.New("not found")
	}
	return task, nil
}

func (f *fakeTaskStore) MarkDueSoonNotified(_ context.Context, taskID string, _ time.Time) error {
	f.marked = append(f.marked, taskID)
	return nil
}

type fakeNotifier struct {
	dueSoonFn func(task store.Task) (notify.Result, error)
	prunedAt  time.Time
}

func (f *fakeNotifier) TaskDueSoon(_ context.Context, task store.Task) (notify.Result, error) {
	return f.dueSoonFn(task)
}

func (f *fakeNotifier) Prune(_ context.Context, now time.Time) (int64, error) {
	f.prunedAt = now
	return 4, nil
}

func TestListDueSoonTasksUsesWindow(t *testing.T) {
	st := &fakeTaskStore{listDueSoonFn: func(from, to time.Time) ([]store.Task, error) {
		if !from.Equal(activityNow) || to.Sub(from) != DueSoonWindow {
			t.Errorf("window = [%v, %v)", from, to)
		}
		return []store.Task{{ID: "a"}, {ID: "b"}}, nil
	}}
	a := &Activities{Store: st, Now: func() time.Time { return activityNow }}

	ids, err := a.ListDueSoonTasks(context.Background())
	if err != nil {
		t.Fatalf("ListDueSoonTasks: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestNotifyDueSoonMarksTask(t *testing.T) {
	st := &fakeTaskStore{tasks: map[string]store.Task{
		"open": {ID: "open", Status: store.StatusPendiente, AssignedTo: store.Assignees{"u1", "u2"}},
	}}
	n := &fakeNotifier{dueSoonFn: func(task store.Task) (notify.Result, error) {
		return notify.Result{Notifications: make([]store.Notification, len(task.AssignedTo))}, nil
	}}
	a := &Activities{Store: st, Notifier: n, Now: func() time.Time { return activityNow }}

	sent, err := a.NotifyDueSoon(context.Background(), "open")
	if err != nil {
		t.Fatalf("NotifyDueSoon: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(st.marked) != 1 || st.marked[0] != "open" {
		t.Fatalf("marked = %v", st.marked)
	}
}

func TestNotifyDueSoonSkipsClosedAndNotified(t *testing.T) {
	notified := activityNow.Add(-time.Hour)
	st := &fakeTaskStore{tasks: map[string]store.Task{
		"closed":   {ID: "closed", Status: store.StatusCerrada},
		"notified": {ID: "notified", Status: store.StatusEnProceso, DueSoonNotifiedAt: &notified},
	}}
	n := &fakeNotifier{dueSoonFn: func(store.Task) (notify.Result, error) {
		t.Fatal("notifier should not be called")
		return notify.Result{}, nil
	}}
	a := &Activities{Store: st, Notifier: n}

	for _, id := range []string{"closed", "notified"} {
		if sent, err := a.NotifyDueSoon(context.Background(), id); err != nil || sent != 0 {
			t.Fatalf("NotifyDueSoon(%s) = %d, %v", id, sent, err)
		}
	}
	if len(st.marked) != 0 {
		t.Fatalf("marked = %v", st.marked)
	}
}

func TestNotifyDueSoonLeavesTaskWhenNothingPersisted(t *testing.T) {
	st := &fakeTaskStore{tasks: map[string]store.Task{
		"t": {ID: "t", Status: store.StatusPendiente, AssignedTo: store.Assignees{"u1"}},
	}}
	n := &fakeNotifier{dueSoonFn: func(store.Task) (notify.Result, error) {
		return notify.Result{Failures: []notify.Failure{{UserID: "u1", Stage: "persist", Error: "boom"}}}, nil
	}}
	a := &Activities{Store: st, Notifier: n}

	if _, err := a.NotifyDueSoon(context.Background(), "t"); err != nil {
		t.Fatalf("NotifyDueSoon: %v", err)
	}
	if len(st.marked) != 0 {
		t.Fatal("task marked although no notification persisted")
	}
}

func TestPruneNotificationsPassesClock(t *testing.T) {
	n := &fakeNotifier{}
	a := &Activities{Notifier: n, Now: func() time.Time { return activityNow }}
	deleted, err := a.PruneNotifications(context.Background())
	if err != nil || deleted != 4 {
		t.Fatalf("PruneNotifications = %d, %v", deleted, err)
	}
	if !n.prunedAt.Equal(activityNow) {
		t.Fatalf("prunedAt = %v", n.prunedAt)
	}
}
