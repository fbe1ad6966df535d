package worker

import (
	"context"
	"fmt"
	"log"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Job is one cron workflow the worker keeps running.
type Job struct {
	ID       string
	Cron     string
	Workflow any
}

// DefaultJobs lists the maintenance schedules.
func DefaultJobs() []Job {
	return []Job{
		{ID: "tareas-due-soon-sweep", Cron: "*/15 * * * *", Workflow: DueSoonSweepWorkflow},
		{ID: "tareas-prune-notifications", Cron: "30 3 * * *", Workflow: PruneNotificationsWorkflow},
	}
}

// cronOptions builds start options for a cron job. Starting a job whose
// workflow id is already running attaches to the existing run.
func cronOptions(job Job, taskQueue string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                    job.ID,
		TaskQueue:             taskQueue,
		CronSchedule:          job.Cron,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
}

// StartCronJobs makes sure every job has a running cron workflow.
func StartCronJobs(ctx context.Context, c client.Client, taskQueue string, jobs []Job) error {
	for _, job := range jobs {
		run, err := c.ExecuteWorkflow(ctx, cronOptions(job, taskQueue), job.Workflow)
		if err != nil {
			return fmt.Errorf("start cron %s: %w", job.ID, err)
		}
		log.Printf("worker: cron %s (%s) running as %s", job.ID, job.Cron, run.GetRunID())
	}
	return nil
}

// New creates a worker on taskQueue with every workflow and activity
// registered.
func New(c client.Client, taskQueue string, activities *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(DueSoonSweepWorkflow)
	w.RegisterWorkflow(PruneNotificationsWorkflow)
	w.RegisterActivity(activities)
	return w
}
