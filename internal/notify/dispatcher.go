// Package notify turns domain events into notification records and push
// delivery requests.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tareas/api/internal/email"
	"tareas/api/internal/rbac"
	"tareas/api/internal/store"
	"tareas/api/internal/util"
)

// ErrInvalidEvent is returned when an event payload is missing required data.
var ErrInvalidEvent = errors.New("invalid notification event")

const (
	DefaultRetention   = 30 * 24 * time.Hour
	defaultParallelism = 8
	defaultListLimit   = 50
	maxListLimit       = 200
)

type Store interface {
	InsertNotification(ctx context.Context, n store.Notification) error
	UpdateNotificationDelivery(ctx context.Context, id string, status store.DeliveryStatus, deliveryErr string, at time.Time) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) (store.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListPushTokens(ctx context.Context, userID string) ([]string, error)
	ListUserIDsByRole(ctx context.Context, role string) ([]string, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetArea(ctx context.Context, areaID string) (store.Area, error)
}

// Mailer is the subset of email.Service the dispatcher needs.
type Mailer interface {
	IsConfigured() bool
	SendTemplate(to, subject, name string, data any) error
}

type Options struct {
	Pusher      Pusher
	Mailer      Mailer
	Now         func() time.Time
	AppBaseURL  string
	Retention   time.Duration
	Parallelism int
}

type Dispatcher struct {
	store       Store
	pusher      Pusher
	mailer      Mailer
	now         func() time.Time
	appBaseURL  string
	retention   time.Duration
	parallelism int
}

func NewDispatcher(s Store, opts Options) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	return &Dispatcher{
		store:       s,
		pusher:      opts.Pusher,
		mailer:      opts.Mailer,
		now:         opts.Now,
		appBaseURL:  strings.TrimRight(opts.AppBaseURL, "/"),
		retention:   opts.Retention,
		parallelism: opts.Parallelism,
	}
}

// Failure describes a recipient whose record or delivery did not succeed.
type Failure struct {
	UserID string `json:"userId"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// Result lists the records written for an event, in recipient order, and
// the recipients that failed along the way.
type Result struct {
	Notifications []store.Notification `json:"notifications"`
	Failures      []Failure            `json:"failures,omitempty"`
}

type event struct {
	kind     store.NotificationType
	title    string
	body     string
	taskID   *string
	areaID   *string
	metadata store.Metadata
	mail     *mailSpec
}

type mailSpec struct {
	subject  string
	template string
	data     func(recipient store.User) any
}

// TaskAssigned notifies recipients, or every assignee when recipients is
// empty, that the task was assigned to them.
func (d *Dispatcher) TaskAssigned(ctx context.Context, task store.Task, recipients []string, actor Actor) (Result, error) {
	if task.ID == "" || len(task.AssignedTo) == 0 {
		return Result{}, fmt.Errorf("%w: task_assigned needs a task with assignees", ErrInvalidEvent)
	}
	if len(recipients) == 0 {
		recipients = task.AssignedTo
	}

	title, body := taskAssignedText(task, actor)
	areaName := d.areaName(ctx, task.AreaID)
	ev := event{
		kind:     store.NotifyTaskAssigned,
		title:    title,
		body:     body,
		taskID:   &task.ID,
		metadata: taskMetadata(task),
		mail: &mailSpec{
			subject:  "Nueva tarea: " + task.Title,
			template: email.TemplateTaskAssigned,
			data: func(u store.User) any {
				return email.TaskAssignedData{
					AppName:    "Tareas",
					UserName:   u.DisplayName,
					TaskTitle:  task.Title,
					AreaName:   areaName,
					DueAt:      task.DueAt.Format("2006-01-02 15:04"),
					Priority:   string(task.Priority),
					AssignedBy: actor.label(),
					TaskURL:    d.appBaseURL + "/tasks/" + task.ID,
				}
			},
		},
	}
	return d.dispatch(ctx, ev, recipients), nil
}

// SubtaskCompleted tells the task creator that actor finished a subtask.
// Creators completing their own subtasks are not notified.
func (d *Dispatcher) SubtaskCompleted(ctx context.Context, task store.Task, subtask store.Subtask, actor Actor) (Result, error) {
	if task.ID == "" || task.CreatedBy == "" || subtask.ID == "" {
		return Result{}, fmt.Errorf("%w: subtask_completed needs task, creator and subtask", ErrInvalidEvent)
	}
	if task.CreatedBy == actor.ID {
		return Result{Notifications: []store.Notification{}}, nil
	}

	title, body := subtaskCompletedText(task, subtask, actor)
	meta := taskMetadata(task)
	meta["subtaskId"] = subtask.ID
	meta["subtaskTitle"] = subtask.Title
	meta["completedBy"] = actor.ID
	ev := event{
		kind:     store.NotifySubtaskCompleted,
		title:    title,
		body:     body,
		taskID:   &task.ID,
		metadata: meta,
	}
	return d.dispatch(ctx, ev, []string{task.CreatedBy}), nil
}

// TaskDueSoon warns every assignee that the task is about to fall due.
func (d *Dispatcher) TaskDueSoon(ctx context.Context, task store.Task) (Result, error) {
	if task.ID == "" || len(task.AssignedTo) == 0 || task.DueAt.IsZero() {
		return Result{}, fmt.Errorf("%w: task_due_soon needs assignees and dueAt", ErrInvalidEvent)
	}
	title, body := taskDueSoonText(task, d.now())
	ev := event{
		kind:     store.NotifyTaskDueSoon,
		title:    title,
		body:     body,
		taskID:   &task.ID,
		metadata: taskMetadata(task),
	}
	return d.dispatch(ctx, ev, task.AssignedTo), nil
}

// AreaCreated notifies every active admin.
func (d *Dispatcher) AreaCreated(ctx context.Context, area store.Area, actor Actor) (Result, error) {
	if area.ID == "" {
		return Result{}, fmt.Errorf("%w: area_created needs an area id", ErrInvalidEvent)
	}
	admins, err := d.store.ListUserIDsByRole(ctx, string(rbac.RoleAdmin))
	if err != nil {
		log.Printf("notify: list admins for area %s: %v", area.ID, err)
		return Result{
			Notifications: []store.Notification{},
			Failures:      []Failure{{Stage: "recipients", Error: err.Error()}},
		}, nil
	}

	title, body := areaCreatedText(area, actor)
	ev := event{
		kind:     store.NotifyAreaCreated,
		title:    title,
		body:     body,
		areaID:   &area.ID,
		metadata: store.Metadata{"areaName": area.Name, "tipo": string(area.Type), "createdBy": actor.ID},
	}
	return d.dispatch(ctx, ev, admins), nil
}

// AreaChiefAssigned notifies the new chief of an area.
func (d *Dispatcher) AreaChiefAssigned(ctx context.Context, area store.Area, chiefID string, actor Actor) (Result, error) {
	if area.ID == "" || chiefID == "" {
		return Result{}, fmt.Errorf("%w: area_chief_assigned needs area and chief", ErrInvalidEvent)
	}

	title, body := areaChiefAssignedText(area)
	ev := event{
		kind:     store.NotifyAreaChiefAssigned,
		title:    title,
		body:     body,
		areaID:   &area.ID,
		metadata: store.Metadata{"areaName": area.Name, "assignedBy": actor.ID},
		mail: &mailSpec{
			subject:  "Jefatura del área " + area.Name,
			template: email.TemplateAreaChiefAssigned,
			data: func(u store.User) any {
				return email.AreaChiefData{
					AppName:  "Tareas",
					UserName: u.DisplayName,
					AreaName: area.Name,
					AreaURL:  d.appBaseURL + "/areas/" + area.ID,
				}
			},
		},
	}
	return d.dispatch(ctx, ev, []string{chiefID}), nil
}

// MarkRead flips a notification to read. Marking it again is a no-op that
// keeps the original readAt.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID, userID string) (store.Notification, error) {
	if notificationID == "" || userID == "" {
		return store.Notification{}, fmt.Errorf("%w: notification and user are required", ErrInvalidEvent)
	}
	return d.store.MarkNotificationRead(ctx, notificationID, userID, d.now())
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return d.store.MarkAllNotificationsRead(ctx, userID, d.now())
}

func (d *Dispatcher) ListForUser(ctx context.Context, userID string, limit int) ([]store.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return d.store.ListNotifications(ctx, userID, limit)
}

// Prune deletes notifications older than the retention period.
func (d *Dispatcher) Prune(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := d.store.DeleteNotificationsBefore(ctx, now.Add(-d.retention))
	if err != nil {
		return 0, err
	}
	log.Printf("notify: pruned %d notifications older than %s", deleted, d.retention)
	return deleted, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, ev event, recipients []string) Result {
	recipients = uniqueRecipients(recipients)
	slots := make([]outcome, len(recipients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)
	for i, userID := range recipients {
		g.Go(func() error {
			slots[i] = d.deliver(gctx, ev, userID)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Notifications: make([]store.Notification, 0, len(recipients))}
	for _, slot := range slots {
		if slot.record != nil {
			res.Notifications = append(res.Notifications, *slot.record)
		}
		res.Failures = append(res.Failures, slot.failures...)
	}
	return res
}

type outcome struct {
	record   *store.Notification
	failures []Failure
}

func (d *Dispatcher) deliver(ctx context.Context, ev event, userID string) outcome {
	var out outcome
	fail := func(stage string, err error) {
		log.Printf("notify: %s %s for %s: %v", ev.kind, stage, userID, err)
		out.failures = append(out.failures, Failure{UserID: userID, Stage: stage, Error: err.Error()})
	}

	n := store.Notification{
		ID:             util.NewID("ntf"),
		Type:           ev.kind,
		Title:          ev.title,
		Body:           ev.body,
		UserID:         userID,
		TaskID:         ev.taskID,
		AreaID:         ev.areaID,
		Metadata:       ev.metadata,
		DeliveryStatus: store.DeliveryCreated,
		CreatedAt:      d.now(),
	}
	if err := d.store.InsertNotification(ctx, n); err != nil {
		fail("persist", err)
		return out
	}

	status, deliveryErr := d.push(ctx, n)
	if status != store.DeliveryCreated {
		at := d.now()
		if err := d.store.UpdateNotificationDelivery(ctx, n.ID, status, deliveryErr, at); err != nil {
			fail("record_delivery", err)
		}
		n.DeliveryStatus = status
		n.DeliveryError = deliveryErr
		if status == store.DeliveryDelivered {
			n.DeliveredAt = &at
		}
		if status == store.DeliveryFailed {
			fail("push", errors.New(deliveryErr))
		}
	}
	out.record = &n

	if ev.mail != nil {
		d.sendMail(ctx, ev, userID)
	}
	return out
}

// push returns DeliveryCreated when there was nothing to deliver to.
func (d *Dispatcher) push(ctx context.Context, n store.Notification) (store.DeliveryStatus, string) {
	if d.pusher == nil {
		return store.DeliveryCreated, ""
	}
	tokens, err := d.store.ListPushTokens(ctx, n.UserID)
	if err != nil {
		return store.DeliveryFailed, "list push tokens: " + err.Error()
	}
	if len(tokens) == 0 {
		return store.DeliveryCreated, ""
	}

	data := map[string]string{"type": string(n.Type), "notificationId": n.ID}
	if n.TaskID != nil {
		data["taskId"] = *n.TaskID
	}
	if n.AreaID != nil {
		data["areaId"] = *n.AreaID
	}
	messages := make([]PushMessage, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, PushMessage{To: token, Title: n.Title, Body: n.Body, Data: data, Sound: "default"})
	}

	tickets, err := d.pusher.Send(ctx, messages)
	if err != nil {
		return store.DeliveryFailed, err.Error()
	}
	var errs []string
	delivered := false
	for _, ticket := range tickets {
		if ticket.OK() {
			delivered = true
			continue
		}
		msg := ticket.Message
		if ticket.Details.Error != "" {
			msg = ticket.Details.Error + ": " + msg
		}
		errs = append(errs, msg)
	}
	if delivered {
		return store.DeliveryDelivered, ""
	}
	return store.DeliveryFailed, strings.Join(errs, "; ")
}

func (d *Dispatcher) sendMail(ctx context.Context, ev event, userID string) {
	if d.mailer == nil || !d.mailer.IsConfigured() {
		return
	}
	user, err := d.store.GetUserByID(ctx, userID)
	if err != nil {
		log.Printf("notify: %s email lookup for %s: %v", ev.kind, userID, err)
		return
	}
	if user.Email == "" || !user.Active() {
		return
	}
	if err := d.mailer.SendTemplate(user.Email, ev.mail.subject, ev.mail.template, ev.mail.data(user)); err != nil {
		log.Printf("notify: %s email to %s: %v", ev.kind, userID, err)
	}
}

func (d *Dispatcher) areaName(ctx context.Context, areaID string) string {
	if d.mailer == nil || !d.mailer.IsConfigured() {
		return areaID
	}
	area, err := d.store.GetArea(ctx, areaID)
	if err != nil {
		return areaID
	}
	return area.Name
}

func uniqueRecipients(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
