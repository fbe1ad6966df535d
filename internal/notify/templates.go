package notify

import (
	"fmt"
	"time"

	"tareas/api/internal/store"
)

// Actor is the user whose action triggered an event.
type Actor struct {
	ID   string
	Name string
}

func (a Actor) label() string {
	if a.Name != "" {
		return a.Name
	}
	return "Alguien"
}

func taskAssignedText(task store.Task, actor Actor) (string, string) {
	return "Nueva tarea asignada", fmt.Sprintf("%s te asignó: %s", actor.label(), task.Title)
}

func subtaskCompletedText(task store.Task, subtask store.Subtask, actor Actor) (string, string) {
	return "Subtarea completada", fmt.Sprintf("%s completó %q en %s", actor.label(), subtask.Title, task.Title)
}

func taskDueSoonText(task store.Task, now time.Time) (string, string) {
	left := task.DueAt.Sub(now)
	if left < time.Hour {
		return "Tarea por vencer", fmt.Sprintf("%q vence en menos de 1 h", task.Title)
	}
	return "Tarea por vencer", fmt.Sprintf("%q vence en %d h", task.Title, int(left/time.Hour))
}

func areaCreatedText(area store.Area, actor Actor) (string, string) {
	return "Nueva área creada", fmt.Sprintf("%s creó el área %s", actor.label(), area.Name)
}

func areaChiefAssignedText(area store.Area) (string, string) {
	return "Designación de jefe de área", fmt.Sprintf("Ahora eres jefe del área %s", area.Name)
}

func taskMetadata(task store.Task) store.Metadata {
	return store.Metadata{
		"taskTitle": task.Title,
		"priority":  string(task.Priority),
		"dueAt":     task.DueAt.UTC().Format(time.RFC3339),
		"areaId":    task.AreaID,
	}
}
