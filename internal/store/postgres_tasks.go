package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const taskColumns = `id, title, description, status, priority, area_id, assigned_to, subtasks,
	due_at, created_by, created_at, updated_at, closed_at, due_soon_notified_at`

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, area_id, assigned_to, subtasks, due_at, created_by, created_at, updated_at, closed_at)
		VALUES (:id, :title, :description, :status, :priority, :area_id, :assigned_to, :subtasks, :due_at, :created_by, :created_at, :updated_at, :closed_at)
	`, task)
	if err != nil {
		return fmt.Errorf("insert task: %w", mapConstraintError(err))
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	var task Task
	if err := s.db.GetContext(ctx, &task, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID); err != nil {
		return Task{}, err
	}
	return task, nil
}

// UpdateTask overwrites the mutable fields of an existing task.
func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE tasks SET
			title=:title,
			description=:description,
			status=:status,
			priority=:priority,
			area_id=:area_id,
			assigned_to=:assigned_to,
			subtasks=:subtasks,
			due_at=:due_at,
			updated_at=:updated_at,
			closed_at=:closed_at,
			due_soon_notified_at=:due_soon_notified_at
		WHERE id=:id
	`, task)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update task %s: %w", task.ID, sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AreaID != "" {
		where = append(where, "area_id="+arg(filter.AreaID))
	}
	if filter.Status != "" {
		where = append(where, "status="+arg(string(filter.Status)))
	} else if !filter.IncludeClosed {
		where = append(where, "status <> 'cerrada'")
	}
	if filter.AssigneeID != "" {
		where = append(where, "assigned_to @> jsonb_build_array("+arg(filter.AssigneeID)+"::text)")
	}
	if filter.DueFrom != nil {
		where = append(where, "due_at >= "+arg(*filter.DueFrom))
	}
	if filter.DueTo != nil {
		where = append(where, "due_at < "+arg(*filter.DueTo))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_at, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	tasks := []Task{}
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListDueSoonTasks returns open tasks due in [from, to) that have not had a
// due-soon notification yet.
func (s *PostgresStore) ListDueSoonTasks(ctx context.Context, from, to time.Time) ([]Task, error) {
	tasks := []Task{}
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status <> 'cerrada'
			AND due_at >= $1 AND due_at < $2
			AND due_soon_notified_at IS NULL
		ORDER BY due_at, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list due soon tasks: %w", err)
	}
	return tasks, nil
}

func (s *PostgresStore) MarkDueSoonNotified(ctx context.Context, taskID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET due_soon_notified_at=$2 WHERE id=$1 AND due_soon_notified_at IS NULL
	`, taskID, at)
	if err != nil {
		return fmt.Errorf("mark due soon notified: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertTaskMessage(ctx context.Context, msg TaskMessage) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO task_messages (id, task_id, author_id, author_name, text, attachment_key, attachment_name, created_at)
		VALUES (:id, :task_id, :author_id, :author_name, :text, :attachment_key, :attachment_name, :created_at)
	`, msg)
	if err != nil {
		return fmt.Errorf("insert task message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTaskMessages(ctx context.Context, taskID string, limit int) ([]TaskMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	messages := []TaskMessage{}
	err := s.db.SelectContext(ctx, &messages, `
		SELECT id, task_id, author_id, author_name, text, attachment_key, attachment_name, created_at
		FROM (
			SELECT * FROM task_messages WHERE task_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2
		) recent
		ORDER BY created_at, id
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list task messages: %w", err)
	}
	return messages, nil
}
