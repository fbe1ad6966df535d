package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tareas/api/internal/store"
	"tareas/api/internal/util"
)

// legacyTask is one record of the old document-store export. assignedTo
// may be a single id or a list; dates may be RFC 3339 strings or epoch
// milliseconds.
type legacyTask struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Priority    string          `json:"priority"`
	Area        string          `json:"area"`
	AssignedTo  json.RawMessage `json:"assignedTo"`
	DueAt       json.RawMessage `json:"dueAt"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   json.RawMessage `json:"createdAt"`
	UpdatedAt   json.RawMessage `json:"updatedAt"`
}

func parseLegacyTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported timestamp %s", raw)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// toTask converts a legacy record. Missing status and priority get the
// same defaults the API applies; everything else must validate.
func (lt legacyTask) toTask(now time.Time) (store.Task, error) {
	assignees, err := store.ParseAssignees(lt.AssignedTo)
	if err != nil {
		return store.Task{}, err
	}
	due, err := parseLegacyTime(lt.DueAt)
	if err != nil {
		return store.Task{}, fmt.Errorf("dueAt: %w", err)
	}
	created, err := parseLegacyTime(lt.CreatedAt)
	if err != nil {
		return store.Task{}, fmt.Errorf("createdAt: %w", err)
	}
	updated, err := parseLegacyTime(lt.UpdatedAt)
	if err != nil {
		return store.Task{}, fmt.Errorf("updatedAt: %w", err)
	}
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = created
	}

	task := store.Task{
		ID:          strings.TrimSpace(lt.ID),
		Title:       strings.TrimSpace(lt.Title),
		Description: strings.TrimSpace(lt.Description),
		Status:      store.TaskStatus(lt.Status),
		Priority:    store.Priority(lt.Priority),
		AreaID:      strings.TrimSpace(lt.Area),
		AssignedTo:  assignees,
		DueAt:       due,
		CreatedBy:   strings.TrimSpace(lt.CreatedBy),
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
	if task.ID == "" {
		task.ID = util.NewID("task")
	}
	if task.Status == "" {
		task.Status = store.StatusPendiente
	}
	if task.Priority == "" {
		task.Priority = store.PriorityMedia
	}
	if task.CreatedBy == "" {
		task.CreatedBy = assignees[0]
	}
	if task.Closed() {
		task.ClosedAt = &updated
	}
	if err := task.Validate(); err != nil {
		return store.Task{}, err
	}
	return task, nil
}

// decodeLegacyTasks reads a JSON array of legacy records. Records that do
// not convert are reported by index and skipped.
func decodeLegacyTasks(r io.Reader, now time.Time) ([]store.Task, []error, error) {
	var records []legacyTask
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, nil, fmt.Errorf("decode export: %w", err)
	}
	tasks := make([]store.Task, 0, len(records))
	var rejected []error
	for i, record := range records {
		task, err := record.toTask(now)
		if err != nil {
			rejected = append(rejected, fmt.Errorf("record %d (%s): %w", i, record.ID, err))
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, rejected, nil
}

func importTasksCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import-tasks <file.json>",
		Short: "Import tasks from a legacy JSON export",
		Long: `Import tasks from a JSON array exported by the previous system.

Legacy records may carry assignedTo as a single user id; it is stored as a
one-element list. Tasks whose id already exists are skipped.

Examples:
  tareasctl import-tasks export.json
  tareasctl import-tasks export.json --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			tasks, rejected, err := decodeLegacyTasks(file, time.Now().UTC())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, reason := range rejected {
				fmt.Fprintf(out, "skip %v\n", reason)
			}
			if dryRun {
				fmt.Fprintf(out, "%d tasks valid, %d rejected (dry run)\n", len(tasks), len(rejected))
				return nil
			}

			ctx := cmd.Context()
			_, database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()
			dataStore := store.NewPostgresStore(database)

			imported, existing := 0, 0
			for _, task := range tasks {
				err := dataStore.InsertTask(ctx, task)
				if errors.Is(err, store.ErrConflict) {
					existing++
					continue
				}
				if err != nil {
					return fmt.Errorf("insert %s: %w", task.ID, err)
				}
				imported++
			}
			fmt.Fprintf(out, "imported %d tasks, %d already present, %d rejected\n", imported, existing, len(rejected))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the export without writing")
	return cmd
}
