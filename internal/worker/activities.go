package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"tareas/api/internal/notify"
	"tareas/api/internal/store"
)

// DueSoonWindow is how far ahead the sweep looks for tasks about to fall due.
const DueSoonWindow = 24 * time.Hour

// TaskStore is the persistence the maintenance activities need.
type TaskStore interface {
	ListDueSoonTasks(ctx context.Context, from, to time.Time) ([]store.Task, error)
	GetTask(ctx context.Context, id string) (store.Task, error)
	MarkDueSoonNotified(ctx context.Context, taskID string, at time.Time) error
}

// Notifier delivers due-soon warnings and prunes old notifications.
type Notifier interface {
	TaskDueSoon(ctx context.Context, task store.Task) (notify.Result, error)
	Prune(ctx context.Context, now time.Time) (int64, error)
}

// Activities holds the dependencies of every maintenance activity.
type Activities struct {
	Store    TaskStore
	Notifier Notifier
	Now      func() time.Time
}

func (a *Activities) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// ListDueSoonTasks returns the ids of open tasks due within DueSoonWindow
// that have not been warned about yet.
func (a *Activities) ListDueSoonTasks(ctx context.Context) ([]string, error) {
	now := a.now()
	tasks, err := a.Store.ListDueSoonTasks(ctx, now, now.Add(DueSoonWindow))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids, nil
}

// NotifyDueSoon warns the assignees of one task and returns how many
// notifications were stored. The task is marked only when at least one
// notification persisted, so a total failure is retried by the next sweep.
func (a *Activities) NotifyDueSoon(ctx context.Context, taskID string) (int, error) {
	task, err := a.Store.GetTask(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task.Closed() || task.DueSoonNotifiedAt != nil {
		return 0, nil
	}

	res, err := a.Notifier.TaskDueSoon(ctx, task)
	if err != nil {
		return 0, err
	}
	for _, failure := range res.Failures {
		log.Printf("worker: due soon %s for %s failed at %s: %s", taskID, failure.UserID, failure.Stage, failure.Error)
	}
	if len(res.Notifications) == 0 {
		return 0, nil
	}
	if err := a.Store.MarkDueSoonNotified(ctx, taskID, a.now()); err != nil {
		return len(res.Notifications), err
	}
	return len(res.Notifications), nil
}

// PruneNotifications deletes notifications past the retention period.
func (a *Activities) PruneNotifications(ctx context.Context) (int64, error) {
	return a.Notifier.Prune(ctx, a.now())
}
