package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusPendiente  TaskStatus = "pendiente"
	StatusEnProceso  TaskStatus = "en_proceso"
	StatusEnRevision TaskStatus = "en_revision"
	StatusCerrada    TaskStatus = "cerrada"
)

// OpenStatuses lists every status a task can hold before it is closed.
var OpenStatuses = []TaskStatus{StatusPendiente, StatusEnProceso, StatusEnRevision}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPendiente, StatusEnProceso, StatusEnRevision, StatusCerrada:
		return true
	}
	return false
}

type Priority string

const (
	PriorityBaja  Priority = "baja"
	PriorityMedia Priority = "media"
	PriorityAlta  Priority = "alta"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityBaja, PriorityMedia, PriorityAlta:
		return true
	}
	return false
}

type AreaType string

const (
	AreaSecretaria AreaType = "secretaria"
	AreaDireccion  AreaType = "direccion"
)

func (t AreaType) Valid() bool {
	return t == AreaSecretaria || t == AreaDireccion
}

type User struct {
	ID            string     `db:"id" json:"id"`
	DisplayName   string     `db:"display_name" json:"displayName"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	Role          string     `db:"role" json:"role"`
	AreaID        *string    `db:"area_id" json:"areaId,omitempty"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivatedAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

func (u User) Active() bool {
	return u.DeactivatedAt == nil
}

type Subtask struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Done   bool       `json:"done"`
	DoneBy string     `json:"doneBy,omitempty"`
	DoneAt *time.Time `json:"doneAt,omitempty"`
}

// Subtasks is persisted as a JSONB column.
type Subtasks []Subtask

func (s Subtasks) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Subtask(s))
}

func (s *Subtasks) Scan(src any) error {
	return scanJSON(src, (*[]Subtask)(s))
}

type Task struct {
	ID                string     `db:"id" json:"id"`
	Title             string     `db:"title" json:"title"`
	Description       string     `db:"description" json:"description"`
	Status            TaskStatus `db:"status" json:"status"`
	Priority          Priority   `db:"priority" json:"priority"`
	AreaID            string     `db:"area_id" json:"area"`
	AssignedTo        Assignees  `db:"assigned_to" json:"assignedTo"`
	Subtasks          Subtasks   `db:"subtasks" json:"subtasks"`
	DueAt             time.Time  `db:"due_at" json:"dueAt"`
	CreatedBy         string     `db:"created_by" json:"createdBy"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
	ClosedAt          *time.Time `db:"closed_at" json:"closedAt,omitempty"`
	DueSoonNotifiedAt *time.Time `db:"due_soon_notified_at" json:"-"`
}

func (t Task) Closed() bool {
	return t.Status == StatusCerrada
}

// Validate reports input errors; it never fills in missing values.
func (t Task) Validate() error {
	var errs []error
	if t.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if !t.Status.Valid() {
		errs = append(errs, fmt.Errorf("invalid status %q", t.Status))
	}
	if !t.Priority.Valid() {
		errs = append(errs, fmt.Errorf("invalid priority %q", t.Priority))
	}
	if t.AreaID == "" {
		errs = append(errs, errors.New("area is required"))
	}
	if len(t.AssignedTo) == 0 {
		errs = append(errs, ErrInvalidAssignees)
	}
	if t.DueAt.IsZero() {
		errs = append(errs, errors.New("dueAt is required"))
	}
	return errors.Join(errs...)
}

type TaskFilter struct {
	AreaID        string
	Status        TaskStatus
	AssigneeID    string
	DueFrom       *time.Time
	DueTo         *time.Time
	IncludeClosed bool
	Limit         int
}

type Area struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"nombre" json:"nombre"`
	Type      AreaType  `db:"tipo" json:"tipo"`
	ChiefID   *string   `db:"jefe_id" json:"jefeId"`
	ParentID  *string   `db:"parent_id" json:"parentId"`
	Active    bool      `db:"activa" json:"activa"`
	Order     int       `db:"orden" json:"orden"`
	Budget    float64   `db:"presupuesto" json:"presupuesto"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy"`
}

type AreaMember struct {
	AreaID      string    `db:"area_id" json:"areaId"`
	UserID      string    `db:"user_id" json:"userId"`
	Role        string    `db:"rol" json:"rol"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	// Joined fields for API responses
	DisplayName string    `db:"display_name" json:"displayName"`
	Email       string    `db:"email" json:"email"`
}

type NotificationType string

const (
	NotifyTaskAssigned      NotificationType = "task_assigned"
	NotifySubtaskCompleted  NotificationType = "subtask_completed"
	NotifyTaskDueSoon       NotificationType = "task_due_soon"
	NotifyAreaCreated       NotificationType = "area_created"
	NotifyAreaChiefAssigned NotificationType = "area_chief_assigned"
)

type DeliveryStatus string

const (
	DeliveryCreated   DeliveryStatus = "created"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Metadata is persisted as a JSONB column.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

func (m *Metadata) Scan(src any) error {
	return scanJSON(src, (*map[string]any)(m))
}

type Notification struct {
	ID             string           `db:"id" json:"id"`
	Type           NotificationType `db:"type" json:"type"`
	Title          string           `db:"title" json:"title"`
	Body           string           `db:"body" json:"body"`
	UserID         string           `db:"user_id" json:"userId"`
	TaskID         *string          `db:"task_id" json:"taskId,omitempty"`
	AreaID         *string          `db:"area_id" json:"areaId,omitempty"`
	Metadata       Metadata         `db:"metadata" json:"metadata"`
	Read           bool             `db:"read" json:"read"`
	ReadAt         *time.Time       `db:"read_at" json:"readAt,omitempty"`
	DeliveryStatus DeliveryStatus   `db:"delivery_status" json:"deliveryStatus"`
	DeliveryError  string           `db:"delivery_error" json:"deliveryError,omitempty"`
	DeliveredAt    *time.Time       `db:"delivered_at" json:"deliveredAt,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

type PushToken struct {
	UserID    string    `db:"user_id" json:"userId"`
	Token     string    `db:"token" json:"token"`
	Platform  string    `db:"platform" json:"platform"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type TaskMessage struct {
	ID             string    `db:"id" json:"id"`
	TaskID         string    `db:"task_id" json:"taskId"`
	AuthorID       string    `db:"author_id" json:"authorId"`
	AuthorName     string    `db:"author_name" json:"authorName"`
	Text           string    `db:"text" json:"text"`
	AttachmentKey  *string   `db:"attachment_key" json:"attachmentKey,omitempty"`
	AttachmentName *string   `db:"attachment_name" json:"attachmentName,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

func scanJSON(src any, target any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
