package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/dukerupert/tareas/internal/calsync"
	"github.com/dukerupert/tareas/internal/feed"
	"github.com/dukerupert/tareas/internal/store"
)

// maxCalendarSize caps uploaded .ics files.
const maxCalendarSize = 5 << 20

// SyncHandler serves the Moodle calendar routes.
type SyncHandler struct {
	syncer *calsync.Syncer
	users  *store.UserStore
	logger *slog.Logger
}

func NewSyncHandler(syncer *calsync.Syncer, us *store.UserStore, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{syncer: syncer, users: us, logger: logger}
}

// Sync handles POST /api/sync/moodle with an optional {"strategy"}. A
// failed direct download answers 502 with "retry_with":"proxy" so the
// client can ask the user before going through the proxy.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Strategy feed.Strategy `json:"strategy"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	switch req.Strategy {
	case "":
		req.Strategy = feed.Direct
	case feed.Direct, feed.Proxy:
	default:
		writeError(w, http.StatusBadRequest, "strategy must be direct or proxy")
		return
	}

	report, err := h.syncer.Sync(r.Context(), uid, req.Strategy)
	var fetchErr *feed.FetchError
	switch {
	case errors.Is(err, feed.ErrNoProxy):
		writeError(w, http.StatusServiceUnavailable, feed.ErrNoProxy.Error())
	case errors.As(err, &fetchErr):
		h.logger.Warn("calendar fetch failed", "user_id", uid, "strategy", fetchErr.Strategy, "status", fetchErr.StatusCode)
		body := map[string]any{
			"error":    "could not download the calendar",
			"strategy": fetchErr.Strategy,
		}
		if fetchErr.Strategy == feed.Direct {
			body["retry_with"] = feed.Proxy
		}
		writeJSON(w, http.StatusBadGateway, body)
	case err != nil:
		writeServiceError(w, h.logger, "sync calendar", err)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// Import handles POST /api/sync/moodle/import with a raw .ics body or a
// multipart "file".
func (h *SyncHandler) Import(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCalendarSize)
	var body []byte
	var err error
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		file, _, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()
		body, err = io.ReadAll(file)
	} else {
		body, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "calendar file is empty")
		return
	}

	report, err := h.syncer.Import(r.Context(), uid, body)
	if err != nil {
		writeServiceError(w, h.logger, "import calendar", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SetFeed handles PUT /api/profile/moodle
func (h *SyncHandler) SetFeed(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.syncer.SetFeedURL(uid, req.URL)
	if err != nil {
		writeServiceError(w, h.logger, "save calendar url", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ClearFeed handles DELETE /api/profile/moodle
func (h *SyncHandler) ClearFeed(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := h.syncer.ClearFeedURL(uid)
	if err != nil {
		writeServiceError(w, h.logger, "clear calendar url", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Status handles GET /api/sync/moodle
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(uid)
	if err != nil {
		h.logger.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get sync status")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, calsync.ErrUserNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"configured":     user.MoodleICalURL != "",
		"url":            user.MoodleICalURL,
		"last_synced_at": user.LastSyncAt,
	})
}
