package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/tareas/internal/notify"
)

type NotificationHandler struct {
	svc    *notify.Service
	logger *slog.Logger
}

func NewNotificationHandler(svc *notify.Service, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	ns, err := h.svc.List(uid)
	if err != nil {
		h.logger.Error("list notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// Dismiss handles POST /api/notifications/{id}/dismiss
func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.svc.Dismiss(uid, id); err != nil {
		writeServiceError(w, h.logger, "dismiss notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
