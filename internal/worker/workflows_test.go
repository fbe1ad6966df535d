package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"
)

func newWorkflowEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{})
	return env
}

func TestDueSoonSweepWorkflow(t *testing.T) {
	env := newWorkflowEnv(t)
	env.OnActivity("ListDueSoonTasks", mock.Anything).Return([]string{"tsk_a", "tsk_b", "tsk_c"}, nil)
	env.OnActivity("NotifyDueSoon", mock.Anything, "tsk_a").Return(2, nil)
	env.OnActivity("NotifyDueSoon", mock.Anything, "tsk_b").Return(0, errors.New("store down"))
	env.OnActivity("NotifyDueSoon", mock.Anything, "tsk_c").Return(1, nil)

	env.ExecuteWorkflow(DueSoonSweepWorkflow)

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var result SweepResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("GetWorkflowResult: %v", err)
	}
	if result.Tasks != 3 || result.Notifications != 3 {
		t.Fatalf("result = %+v, want 3 tasks and 3 notifications", result)
	}
	if len(result.Failed) != 1 || result.Failed[0] != "tsk_b" {
		t.Fatalf("failed = %v, want [tsk_b]", result.Failed)
	}
}

func TestDueSoonSweepWorkflowListFailure(t *testing.T) {
	env := newWorkflowEnv(t)
	env.OnActivity("ListDueSoonTasks", mock.Anything).Return(([]string)(nil), errors.New("db unavailable"))

	env.ExecuteWorkflow(DueSoonSweepWorkflow)

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if env.GetWorkflowError() == nil {
		t.Fatal("expected workflow error when listing fails")
	}
}

func TestPruneNotificationsWorkflow(t *testing.T) {
	env := newWorkflowEnv(t)
	env.OnActivity("PruneNotifications", mock.Anything).Return(int64(12), nil)

	env.ExecuteWorkflow(PruneNotificationsWorkflow)

	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var deleted int64
	if err := env.GetWorkflowResult(&deleted); err != nil {
		t.Fatalf("GetWorkflowResult: %v", err)
	}
	if deleted != 12 {
		t.Fatalf("deleted = %d, want 12", deleted)
	}
}

func TestCronOptions(t *testing.T) {
	jobs := DefaultJobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	opts := cronOptions(jobs[0], "q")
	if opts.ID != "tareas-due-soon-sweep" || opts.CronSchedule != "*/15 * * * *" || opts.TaskQueue != "q" {
		t.Fatalf("unexpected options %+v", opts)
	}
}
