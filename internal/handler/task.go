package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/tareas/internal/ical"
	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/store"
	"github.com/dukerupert/tareas/internal/websocket"
)

type TaskHandler struct {
	tasks      *store.TaskStore
	tags       *store.TagStore
	categories *store.Repository[model.Category]
	hub        Broadcaster
	logger     *slog.Logger
	now        func() time.Time
}

func NewTaskHandler(ts *store.TaskStore, tags *store.TagStore, cats *store.Repository[model.Category], hub Broadcaster, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: ts, tags: tags, categories: cats, hub: hub, logger: logger, now: time.Now}
}

func (h *TaskHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type taskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	CategoryID  *int64     `json:"category_id"`
	CourseName  string     `json:"course_name"`
	Tags        []string   `json:"tags"`
}

// validate normalizes req and returns a message for the first problem.
func (req *taskRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	if req.Priority == "" {
		req.Priority = string(model.PriorityMedium)
	}
	if !model.Priority(req.Priority).Valid() {
		return "priority must be low, medium, high, or urgent"
	}
	if req.Status == "" {
		req.Status = string(model.StatusPending)
	}
	if !model.Status(req.Status).Valid() {
		return "status must be pending, in_progress, completed, or cancelled"
	}
	return ""
}

// checkCategory reports whether the category (if any) belongs to the user.
func (h *TaskHandler) checkCategory(w http.ResponseWriter, uid int64, id *int64) bool {
	if id == nil {
		return true
	}
	c, err := h.categories.FindByID(uid, *id)
	if err != nil {
		h.logger.Error("get category", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get category")
		return false
	}
	if c == nil {
		writeError(w, http.StatusBadRequest, "unknown category")
		return false
	}
	return true
}

// List handles GET /api/tasks?status=&priority=&category_id=
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := store.TaskFilter{
		Status:   model.Status(q.Get("status")),
		Priority: model.Priority(q.Get("priority")),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	if f.Priority != "" && !f.Priority.Valid() {
		writeError(w, http.StatusBadRequest, "invalid priority filter")
		return
	}
	if c := q.Get("category_id"); c != "" {
		id, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		f.CategoryID = id
	}

	tasks, err := h.tasks.List(uid, f)
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !h.checkCategory(w, uid, req.CategoryID) {
		return
	}

	tagIDs, err := h.tags.Ensure(uid, req.Tags)
	if err != nil {
		h.logger.Error("ensure tags", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	task, err := h.tasks.Create(&model.Task{
		UserID:      uid,
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    model.Priority(req.Priority),
		Status:      model.Status(req.Status),
		DueDate:     req.DueDate,
		CourseName:  req.CourseName,
		Source:      model.SourceManual,
	}, tagIDs...)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	h.broadcast(websocket.NewMessage("task", "created", task.ID, nil).To(uid))
	writeJSON(w, http.StatusCreated, task)
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	task, ok := h.load(w, r, uid)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// load fetches the task named by the {id} path value, writing 400/404/500
// itself when it cannot.
func (h *TaskHandler) load(w http.ResponseWriter, r *http.Request, uid int64) (*model.Task, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	task, err := h.tasks.Get(uid, id)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return nil, false
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return nil, false
	}
	return task, true
}

// Update handles PUT /api/tasks/{id}. Tags are replaced only when the
// request lists them.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	existing, ok := h.load(w, r, uid)
	if !ok {
		return
	}

	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !h.checkCategory(w, uid, req.CategoryID) {
		return
	}

	existing.Title = req.Title
	existing.Description = req.Description
	existing.Priority = model.Priority(req.Priority)
	existing.Status = model.Status(req.Status)
	existing.DueDate = req.DueDate
	existing.CategoryID = req.CategoryID
	existing.CourseName = req.CourseName

	if req.Tags != nil {
		tagIDs, err := h.tags.Ensure(uid, req.Tags)
		if err == nil {
			err = h.tasks.SetTags(existing.ID, tagIDs)
		}
		if err != nil {
			h.logger.Error("update task tags", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update task")
			return
		}
	}

	task, err := h.tasks.Update(uid, existing.ID, existing)
	if err != nil {
		h.logger.Error("update task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	h.broadcast(websocket.NewMessage("task", "updated", task.ID, nil).To(uid))
	writeJSON(w, http.StatusOK, task)
}

// SetStatus handles PATCH /api/tasks/{id}/status
func (h *TaskHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Status model.Status `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be pending, in_progress, completed, or cancelled")
		return
	}

	task, err := h.tasks.SetStatus(uid, id, req.Status)
	if err != nil {
		h.logger.Error("set task status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	h.broadcast(websocket.NewMessage("task", "updated", task.ID, map[string]any{"status": task.Status}).To(uid))
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	deleted, err := h.tasks.Delete(uid, id)
	if err != nil {
		h.logger.Error("delete task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	h.broadcast(websocket.NewMessage("task", "deleted", id, nil).To(uid))
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /api/tasks/export.ics
func (h *TaskHandler) Export(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	tasks, err := h.tasks.List(uid, store.TaskFilter{})
	if err != nil {
		h.logger.Error("export tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export tasks")
		return
	}
	body := ical.Export(tasks, ical.ExportOptions{Name: "Tareas", Now: h.now()})

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tareas.ics"`)
	w.Write([]byte(body))
}
