// Package worker runs the periodic maintenance jobs on Temporal.
package worker

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const TaskQueue = "tareas-maintenance"

// SweepResult summarizes one due-soon sweep.
type SweepResult struct {
	Tasks         int      `json:"tasks"`
	Notifications int      `json:"notifications"`
	Failed        []string `json:"failed,omitempty"`
}

func activityOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})
}

// DueSoonSweepWorkflow warns assignees of tasks due within the next day.
// A task that keeps failing is reported and left for the next run.
func DueSoonSweepWorkflow(ctx workflow.Context) (SweepResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = activityOptions(ctx)

	var ids []string
	if err := workflow.ExecuteActivity(ctx, "ListDueSoonTasks").Get(ctx, &ids); err != nil {
		logger.Error("failed to list due soon tasks", "error", err)
		return SweepResult{}, err
	}

	result := SweepResult{Tasks: len(ids)}
	for _, id := range ids {
		var sent int
		if err := workflow.ExecuteActivity(ctx, "NotifyDueSoon", id).Get(ctx, &sent); err != nil {
			logger.Warn("due soon notification failed", "taskID", id, "error", err)
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Notifications += sent
	}

	logger.Info("due soon sweep finished", "tasks", result.Tasks, "notifications", result.Notifications, "failed", len(result.Failed))
	return result, nil
}

// PruneNotificationsWorkflow deletes notifications older than the retention.
func PruneNotificationsWorkflow(ctx workflow.Context) (int64, error) {
	ctx = activityOptions(ctx)
	var deleted int64
	if err := workflow.ExecuteActivity(ctx, "PruneNotifications").Get(ctx, &deleted); err != nil {
		workflow.GetLogger(ctx).Error("failed to prune notifications", "error", err)
		return 0, err
	}
	return deleted, nil
}
