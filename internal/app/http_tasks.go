package app

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tareas/api/internal/attachments"
	"tareas/api/internal/notify"
	"tareas/api/internal/search"
	"tareas/api/internal/store"
)

func taskPayload(task store.Task, res notify.Result) map[string]any {
	return map[string]any{
		"task":     task,
		"delivery": res,
	}
}

func (s *HTTPServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.TaskFilter{
		AreaID:     query.Get("area"),
		Status:     store.TaskStatus(query.Get("status")),
		AssigneeID: query.Get("assignee"),
		Limit:      queryInt(r, "limit"),
	}
	filter.IncludeClosed, _ = strconv.ParseBool(query.Get("includeClosed"))
	for name, target := range map[string]**time.Time{"dueFrom": &filter.DueFrom, "dueTo": &filter.DueTo} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		parsed, err := parseRFC3339(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Invalid "+name, nil)
			return
		}
		*target = &parsed
	}

	tasks, err := s.service.ListTasks(r.Context(), sessionFrom(r), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body CreateTaskInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	task, res, err := s.service.CreateTask(r.Context(), sessionFrom(r), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskPayload(task, res))
}

func (s *HTTPServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.GetTask(r.Context(), sessionFrom(r), chi.URLParam(r, "taskID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *HTTPServer) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var body UpdateTaskInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	task, res, err := s.service.UpdateTask(r.Context(), sessionFrom(r), chi.URLParam(r, "taskID"), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskPayload(task, res))
}

func (s *HTTPServer) handleAddSubtask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	task, err := s.service.AddSubtask(r.Context(), sessionFrom(r), chi.URLParam(r, "taskID"), body.Title)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"task": task})
}

func (s *HTTPServer) handleCompleteSubtask(w http.ResponseWriter, r *http.Request) {
	task, res, err := s.service.CompleteSubtask(r.Context(), sessionFrom(r), chi.URLParam(r, "taskID"), chi.URLParam(r, "subtaskID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskPayload(task, res))
}

func (s *HTTPServer) handleUrgency(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.service.Urgency(r.Context(), sessionFrom(r), r.URL.Query().Get("area"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *HTTPServer) handleSearchTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := search.Query{
		Text:   query.Get("q"),
		AreaID: query.Get("area"),
		Status: query.Get("status"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	resp, err := s.service.SearchTasks(r.Context(), sessionFrom(r), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.service.ListMessages(r.Context(), sessionFrom(r), chi.URLParam(r, "taskID"), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *HTTPServer) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	msg, err := s.service.PostMessage(r.Context(), sessionFrom(r), chi.URLParam(r, "taskID"), body.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

// handleUploadAttachment expects multipart/form-data with a "file" part and
// an optional "text" caption.
func (s *HTTPServer) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, attachments.MaxSize+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, r, attachments.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Missing file", nil)
		return
	}
	defer file.Close()

	msg, err := s.service.UploadAttachment(r.Context(), sessionFrom(r), chi.URLParam(r, "taskID"),
		header.Filename, file, header.Size, header.Header.Get("Content-Type"), r.FormValue("text"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

func (s *HTTPServer) handleAttachmentURL(w http.ResponseWriter, r *http.Request) {
	url, expiresAt, err := s.service.AttachmentURL(r.Context(), sessionFrom(r), chi.URLParam(r, "taskID"), r.URL.Query().Get("key"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url, "expiresAt": expiresAt.Unix()})
}
