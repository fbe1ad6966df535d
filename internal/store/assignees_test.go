package store

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseAssignees(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Assignees
		wantErr bool
	}{
		{name: "legacy scalar", raw: `"usr_1"`, want: Assignees{"usr_1"}},
		{name: "array", raw: `["usr_1","usr_2"]`, want: Assignees{"usr_1", "usr_2"}},
		{name: "dedupe keeps order", raw: `["usr_2"," usr_1","usr_2"]`, want: Assignees{"usr_2", "usr_1"}},
		{name: "empty array", raw: `[]`, wantErr: true},
		{name: "blank scalar", raw: `"  "`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "number", raw: `42`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAssignees(json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAssignees) {
					t.Fatalf("ParseAssignees(%s) error = %v, want ErrInvalidAssignees", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAssignees(%s) error = %v", tt.raw, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseAssignees(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTaskUnmarshalMigratesLegacyAssignee(t *testing.T) {
	var task Task
	if err := json.Unmarshal([]byte(`{"title":"x","assignedTo":"usr_9"}`), &task); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(task.AssignedTo, Assignees{"usr_9"}) {
		t.Fatalf("AssignedTo = %v", task.AssignedTo)
	}
}

func TestAssigneesAdded(t *testing.T) {
	prev := Assignees{"a", "b"}
	got := prev.Added(Assignees{"b", "c", "d"})
	if !reflect.DeepEqual(got, []string{"c", "d"}) {
		t.Fatalf("Added() = %v", got)
	}
}

func TestTaskValidate(t *testing.T) {
	valid := Task{
		Title:      "Informe",
		Status:     StatusPendiente,
		Priority:   PriorityMedia,
		AreaID:     "area_1",
		AssignedTo: Assignees{"usr_1"},
		DueAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	missingDue := valid
	missingDue.DueAt = time.Time{}
	if err := missingDue.Validate(); err == nil {
		t.Fatal("expected error for missing dueAt")
	}

	noAssignees := valid
	noAssignees.AssignedTo = nil
	if err := noAssignees.Validate(); !errors.Is(err, ErrInvalidAssignees) {
		t.Fatalf("Validate() error = %v, want ErrInvalidAssignees", err)
	}

	badStatus := valid
	badStatus.Status = "hecha"
	if err := badStatus.Validate(); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
