package handler

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/store"
	"github.com/dukerupert/tareas/internal/websocket"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

const defaultColor = "#6b7280"

type labelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (req *labelRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required"
	}
	if req.Color == "" {
		req.Color = defaultColor
	}
	if !hexColor.MatchString(req.Color) {
		return "color must be a hex value like #3b82f6"
	}
	return ""
}

// CategoryHandler serves /api/categories.
type CategoryHandler struct {
	store  *store.Repository[model.Category]
	hub    Broadcaster
	logger *slog.Logger
}

func NewCategoryHandler(s *store.Repository[model.Category], hub Broadcaster, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{store: s, hub: hub, logger: logger}
}

func (h *CategoryHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	cats, err := h.store.FindAll(uid)
	if err != nil {
		h.logger.Error("list categories", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	if cats == nil {
		cats = []model.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req labelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	cat, err := h.store.Create(&model.Category{UserID: uid, Name: req.Name, Color: req.Color})
	if err != nil {
		h.logger.Error("create category", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create category")
		return
	}
	h.broadcast(websocket.NewMessage("category", "created", cat.ID, nil).To(uid))
	writeJSON(w, http.StatusCreated, cat)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req labelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	cat, err := h.store.Update(uid, id, &model.Category{UserID: uid, Name: req.Name, Color: req.Color})
	if err != nil {
		h.logger.Error("update category", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update category")
		return
	}
	if cat == nil {
		writeError(w, http.StatusNotFound, "category not found")
		return
	}
	h.broadcast(websocket.NewMessage("category", "updated", cat.ID, nil).To(uid))
	writeJSON(w, http.StatusOK, cat)
}

// Delete removes a category. Its tasks keep existing, uncategorized.
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	deleted, err := h.store.Delete(uid, id)
	if err != nil {
		h.logger.Error("delete category", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete category")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "category not found")
		return
	}
	h.broadcast(websocket.NewMessage("category", "deleted", id, nil).To(uid))
	w.WriteHeader(http.StatusNoContent)
}

// TagHandler serves /api/tags.
type TagHandler struct {
	store  *store.TagStore
	logger *slog.Logger
}

func NewTagHandler(s *store.TagStore, logger *slog.Logger) *TagHandler {
	return &TagHandler{store: s, logger: logger}
}

func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	tags, err := h.store.FindAll(uid)
	if err != nil {
		h.logger.Error("list tags", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tags")
		return
	}
	if tags == nil {
		tags = []model.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

// Create returns the existing tag when one with the same name exists.
func (h *TagHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req labelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	existing, err := h.store.First("user_id = ? AND lower(name) = lower(?)", uid, req.Name)
	if err != nil {
		h.logger.Error("find tag", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create tag")
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}
	tag, err := h.store.Create(&model.Tag{UserID: uid, Name: req.Name, Color: req.Color})
	if err != nil {
		h.logger.Error("create tag", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create tag")
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (h *TagHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	deleted, err := h.store.Delete(uid, id)
	if err != nil {
		h.logger.Error("delete tag", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete tag")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "tag not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
