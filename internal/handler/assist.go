package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/tareas/internal/assist"
	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/store"
	"github.com/dukerupert/tareas/internal/websocket"
)

// AssistHandler serves the task assistant and subtask routes.
type AssistHandler struct {
	svc      *assist.Service
	tasks    *store.TaskStore
	subtasks *store.SubtaskStore
	hub      Broadcaster
	logger   *slog.Logger
}

func NewAssistHandler(svc *assist.Service, ts *store.TaskStore, ss *store.SubtaskStore, hub Broadcaster, logger *slog.Logger) *AssistHandler {
	return &AssistHandler{svc: svc, tasks: ts, subtasks: ss, hub: hub, logger: logger}
}

func (h *AssistHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// SuggestPriority handles POST /api/assist/priority
func (h *AssistHandler) SuggestPriority(w http.ResponseWriter, r *http.Request) {
	if _, ok := userID(w, r); !ok {
		return
	}
	var draft assist.TaskDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	res, err := h.svc.SuggestPriority(r.Context(), draft)
	if err != nil {
		writeServiceError(w, h.logger, "suggest priority", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Expand handles POST /api/assist/expand
func (h *AssistHandler) Expand(w http.ResponseWriter, r *http.Request) {
	if _, ok := userID(w, r); !ok {
		return
	}
	var req struct {
		Task string `json:"task"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.ExpandVagueTask(r.Context(), req.Task)
	if err != nil {
		writeServiceError(w, h.logger, "expand task", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SuggestTags handles POST /api/assist/tags
func (h *AssistHandler) SuggestTags(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var draft assist.TaskDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	tags, err := h.svc.SuggestTags(r.Context(), uid, draft)
	if err != nil {
		writeServiceError(w, h.logger, "suggest tags", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

// Conflicts handles GET /api/assist/conflicts
func (h *AssistHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	conflicts, err := h.svc.DetectTimeConflicts(r.Context(), uid)
	if err != nil {
		writeServiceError(w, h.logger, "detect conflicts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

// DailySummary handles GET /api/assist/daily-summary
func (h *AssistHandler) DailySummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.GenerateDailySummary(r.Context(), uid)
	if err != nil {
		writeServiceError(w, h.logger, "generate daily summary", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Productivity handles GET /api/assist/productivity
func (h *AssistHandler) Productivity(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.AnalyzeProductivity(r.Context(), uid)
	if err != nil {
		writeServiceError(w, h.logger, "analyze productivity", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Chat handles POST /api/assist/chat
func (h *AssistHandler) Chat(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Messages []assist.ChatMessage `json:"messages"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := h.svc.Chat(r.Context(), uid, req.Messages)
	if err != nil {
		writeServiceError(w, h.logger, "chat", err)
		return
	}
	if reply.Task != nil {
		h.broadcast(websocket.NewMessage("task", "created", reply.Task.ID, nil).To(uid))
	}
	writeJSON(w, http.StatusOK, reply)
}

// ownTask checks that the {id} task belongs to the user.
func (h *AssistHandler) ownTask(w http.ResponseWriter, r *http.Request, uid int64) (int64, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	task, err := h.tasks.FindByID(uid, id)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return 0, false
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return 0, false
	}
	return id, true
}

// Subtasks handles GET /api/tasks/{id}/subtasks
func (h *AssistHandler) Subtasks(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	taskID, ok := h.ownTask(w, r, uid)
	if !ok {
		return
	}
	subtasks, err := h.subtasks.FindAll(taskID)
	if err != nil {
		h.logger.Error("list subtasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subtasks")
		return
	}
	if subtasks == nil {
		subtasks = []model.Subtask{}
	}
	writeJSON(w, http.StatusOK, subtasks)
}

// GenerateSubtasks handles POST /api/tasks/{id}/subtasks/generate
func (h *AssistHandler) GenerateSubtasks(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	taskID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	subtasks, err := h.svc.GenerateSubtasks(r.Context(), uid, taskID)
	if err != nil {
		writeServiceError(w, h.logger, "generate subtasks", err)
		return
	}
	h.broadcast(websocket.NewMessage("task", "updated", taskID, nil).To(uid))
	writeJSON(w, http.StatusOK, subtasks)
}

// ToggleSubtask handles PATCH /api/tasks/{id}/subtasks/{subtaskID}
func (h *AssistHandler) ToggleSubtask(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	taskID, ok := h.ownTask(w, r, uid)
	if !ok {
		return
	}
	subtaskID, err := strconv.ParseInt(r.PathValue("subtaskID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subtask id")
		return
	}
	var req struct {
		Completed *bool `json:"completed"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	st, err := h.subtasks.FindByID(taskID, subtaskID)
	if err != nil {
		h.logger.Error("get subtask", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update subtask")
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "subtask not found")
		return
	}
	if req.Completed != nil {
		st.Completed = *req.Completed
	} else {
		st.Completed = !st.Completed
	}
	updated, err := h.subtasks.Update(taskID, st.ID, st)
	if err != nil {
		h.logger.Error("update subtask", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update subtask")
		return
	}
	h.broadcast(websocket.NewMessage("task", "updated", taskID, nil).To(uid))
	writeJSON(w, http.StatusOK, updated)
}
