package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tareas/api/internal/categorize"
	"tareas/api/internal/notify"
	"tareas/api/internal/rbac"
	"tareas/api/internal/search"
	"tareas/api/internal/store"
	"tareas/api/internal/util"
)

type CreateTaskInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Priority    string          `json:"priority"`
	AreaID      string          `json:"area"`
	AssignedTo  json.RawMessage `json:"assignedTo"`
	DueAt       string          `json:"dueAt"`
	Subtasks    []string        `json:"subtasks"`
}

// UpdateTaskInput carries optional fields; nil means unchanged.
type UpdateTaskInput struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	Priority    *string         `json:"priority"`
	AreaID      *string         `json:"area"`
	AssignedTo  json.RawMessage `json:"assignedTo"`
	DueAt       *string         `json:"dueAt"`
}

func (in UpdateTaskInput) onlyStatus() bool {
	return in.Title == nil && in.Description == nil && in.Priority == nil &&
		in.AreaID == nil && len(in.AssignedTo) == 0 && in.DueAt == nil
}

func canSeeTask(session Session, task store.Task) bool {
	if rbac.SeesAllTasks(session.Role) {
		return true
	}
	return task.AssignedTo.Contains(session.UserID) || task.CreatedBy == session.UserID
}

func validationDetails(err error) []string {
	var details []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			details = append(details, e.Error())
		}
		return details
	}
	return []string{err.Error()}
}

func (s *Service) ListTasks(ctx context.Context, session Session, filter store.TaskFilter) ([]store.Task, error) {
	if err := s.authorize(session, rbac.ActionTaskRead); err != nil {
		return nil, err
	}
	if !rbac.SeesAllTasks(session.Role) {
		filter.AssigneeID = session.UserID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationError("Invalid status filter", map[string]any{"status": filter.Status})
	}
	return s.store.ListTasks(ctx, filter)
}

// GetTask hides tasks the viewer may not see behind a 404.
func (s *Service) GetTask(ctx context.Context, session Session, taskID string) (store.Task, error) {
	if err := s.authorize(session, rbac.ActionTaskRead); err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, lookupError(err, "Task")
	}
	if !canSeeTask(session, task) {
		return store.Task{}, notFound("Task")
	}
	return task, nil
}

func (s *Service) CreateTask(ctx context.Context, session Session, in CreateTaskInput) (store.Task, notify.Result, error) {
	if err := s.authorize(session, rbac.ActionTaskCreate); err != nil {
		return store.Task{}, notify.Result{}, err
	}

	assignees, err := store.ParseAssignees(in.AssignedTo)
	if err != nil {
		return store.Task{}, notify.Result{}, validationError("Invalid assignees", []string{err.Error()})
	}
	due, err := parseRFC3339(in.DueAt)
	if err != nil {
		return store.Task{}, notify.Result{}, validationError("Invalid dueAt", []string{err.Error()})
	}
	if in.Status == "" {
		in.Status = string(store.StatusPendiente)
	}
	if in.Priority == "" {
		in.Priority = string(store.PriorityMedia)
	}

	now := s.now()
	task := store.Task{
		ID:          util.NewID("task"),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      store.TaskStatus(in.Status),
		Priority:    store.Priority(in.Priority),
		AreaID:      strings.TrimSpace(in.AreaID),
		AssignedTo:  assignees,
		DueAt:       due,
		CreatedBy:   session.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, title := range in.Subtasks {
		if title = strings.TrimSpace(title); title != "" {
			task.Subtasks = append(task.Subtasks, store.Subtask{ID: util.NewID("sub"), Title: title})
		}
	}
	if task.Closed() {
		task.ClosedAt = &now
	}
	if err := task.Validate(); err != nil {
		return store.Task{}, notify.Result{}, validationError("Invalid task", validationDetails(err))
	}
	if err := s.requireActiveArea(ctx, task.AreaID); err != nil {
		return store.Task{}, notify.Result{}, err
	}

	if err := s.store.InsertTask(ctx, task); err != nil {
		return store.Task{}, notify.Result{}, fmt.Errorf("insert task: %w", err)
	}
	s.afterTaskWrite(ctx, task)

	var res notify.Result
	if s.notifier != nil {
		res, err = s.notifier.TaskAssigned(ctx, task, nil, session.actor())
		logDelivery("task assigned", res, err)
	}
	return task, res, nil
}

// UpdateTask applies a partial update. A usuario may only move the status of
// a task assigned to them.
func (s *Service) UpdateTask(ctx context.Context, session Session, taskID string, in UpdateTaskInput) (store.Task, notify.Result, error) {
	if err := s.authorize(session, rbac.ActionTaskUpdate); err != nil {
		return store.Task{}, notify.Result{}, err
	}
	current, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, notify.Result{}, lookupError(err, "Task")
	}
	if !canSeeTask(session, current) {
		return store.Task{}, notify.Result{}, notFound("Task")
	}
	if !rbac.SeesAllTasks(session.Role) {
		if !current.AssignedTo.Contains(session.UserID) || !in.onlyStatus() {
			return store.Task{}, notify.Result{}, forbidden(string(rbac.ActionTaskUpdate))
		}
	}

	next := current
	if in.Title != nil {
		next.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		next.Status = store.TaskStatus(*in.Status)
	}
	if in.Priority != nil {
		next.Priority = store.Priority(*in.Priority)
	}
	if in.AreaID != nil {
		next.AreaID = strings.TrimSpace(*in.AreaID)
	}
	if in.DueAt != nil {
		due, err := parseRFC3339(*in.DueAt)
		if err != nil {
			return store.Task{}, notify.Result{}, validationError("Invalid dueAt", []string{err.Error()})
		}
		next.DueAt = due
		next.DueSoonNotifiedAt = nil
	}
	if len(in.AssignedTo) > 0 {
		if err := s.authorize(session, rbac.ActionTaskAssign); err != nil {
			return store.Task{}, notify.Result{}, err
		}
		assignees, err := store.ParseAssignees(in.AssignedTo)
		if err != nil {
			return store.Task{}, notify.Result{}, validationError("Invalid assignees", []string{err.Error()})
		}
		next.AssignedTo = assignees
	}

	now := s.now()
	switch {
	case next.Closed() && !current.Closed():
		next.ClosedAt = &now
	case !next.Closed():
		next.ClosedAt = nil
	}
	next.UpdatedAt = now

	if err := next.Validate(); err != nil {
		return store.Task{}, notify.Result{}, validationError("Invalid task", validationDetails(err))
	}
	if next.AreaID != current.AreaID {
		if err := s.requireActiveArea(ctx, next.AreaID); err != nil {
			return store.Task{}, notify.Result{}, err
		}
	}
	if err := s.store.UpdateTask(ctx, next); err != nil {
		return store.Task{}, notify.Result{}, lookupError(err, "Task")
	}
	s.afterTaskWrite(ctx, next)

	var res notify.Result
	if added := current.AssignedTo.Added(next.AssignedTo); len(added) > 0 && s.notifier != nil {
		res, err = s.notifier.TaskAssigned(ctx, next, added, session.actor())
		logDelivery("task assigned", res, err)
	}
	return next, res, nil
}

func (s *Service) AddSubtask(ctx context.Context, session Session, taskID, title string) (store.Task, error) {
	if err := s.authorize(session, rbac.ActionTaskCreate); err != nil {
		return store.Task{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Task{}, validationError("Invalid subtask", []string{"title is required"})
	}
	task, err := s.GetTask(ctx, session, taskID)
	if err != nil {
		return store.Task{}, err
	}
	task.Subtasks = append(task.Subtasks, store.Subtask{ID: util.NewID("sub"), Title: title})
	task.UpdatedAt = s.now()
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return store.Task{}, lookupError(err, "Task")
	}
	s.afterTaskWrite(ctx, task)
	return task, nil
}

// CompleteSubtask marks a subtask done. Completing it again is a no-op and
// sends nothing.
func (s *Service) CompleteSubtask(ctx context.Context, session Session, taskID, subtaskID string) (store.Task, notify.Result, error) {
	if err := s.authorize(session, rbac.ActionTaskUpdate); err != nil {
		return store.Task{}, notify.Result{}, err
	}
	task, err := s.GetTask(ctx, session, taskID)
	if err != nil {
		return store.Task{}, notify.Result{}, err
	}
	if !rbac.SeesAllTasks(session.Role) && !task.AssignedTo.Contains(session.UserID) {
		return store.Task{}, notify.Result{}, forbidden(string(rbac.ActionTaskUpdate))
	}

	idx := -1
	for i, sub := range task.Subtasks {
		if sub.ID == subtaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return store.Task{}, notify.Result{}, notFound("Subtask")
	}
	if task.Subtasks[idx].Done {
		return task, notify.Result{}, nil
	}

	now := s.now()
	subtasks := make(store.Subtasks, len(task.Subtasks))
	copy(subtasks, task.Subtasks)
	subtasks[idx].Done = true
	subtasks[idx].DoneBy = session.UserID
	subtasks[idx].DoneAt = &now
	task.Subtasks = subtasks
	task.UpdatedAt = now

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return store.Task{}, notify.Result{}, lookupError(err, "Task")
	}
	s.afterTaskWrite(ctx, task)

	var res notify.Result
	if s.notifier != nil {
		res, err = s.notifier.SubtaskCompleted(ctx, task, subtasks[idx], session.actor())
		logDelivery("subtask completed", res, err)
	}
	return task, res, nil
}

// Urgency buckets the open tasks the viewer can see by due date.
func (s *Service) Urgency(ctx context.Context, session Session, areaID string) (categorize.Buckets, error) {
	if err := s.authorize(session, rbac.ActionTaskRead); err != nil {
		return categorize.Buckets{}, err
	}
	filter := store.TaskFilter{AreaID: areaID}
	if !rbac.SeesAllTasks(session.Role) {
		filter.AssigneeID = session.UserID
	}
	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return categorize.Buckets{}, err
	}
	return categorize.Categorize(tasks, session.UserID, session.Role, s.now()), nil
}

func (s *Service) SearchTasks(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	if err := s.authorize(session, rbac.ActionTaskRead); err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{}, unavailable("SEARCH_UNAVAILABLE", "Search is not configured")
	}
	q.ViewerID = session.UserID
	q.Restricted = !rbac.SeesAllTasks(session.Role)
	return s.search.Search(ctx, q), nil
}

func (s *Service) requireActiveArea(ctx context.Context, areaID string) error {
	area, err := s.store.GetArea(ctx, areaID)
	if errors.Is(err, sql.ErrNoRows) {
		return validationError("Invalid task", []string{fmt.Sprintf("unknown area %q", areaID)})
	}
	if err != nil {
		return fmt.Errorf("load area: %w", err)
	}
	if !area.Active {
		return validationError("Invalid task", []string{fmt.Sprintf("area %q is inactive", areaID)})
	}
	return nil
}

func (s *Service) afterTaskWrite(ctx context.Context, task store.Task) {
	if s.search != nil {
		s.search.IndexTask(search.NewTaskRecord(task))
	}
	s.invalidateAnalytics(ctx)
}

func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	}
	return t.UTC(), err
}
