// Package handler implements the JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/tareas/internal/assist"
	"github.com/dukerupert/tareas/internal/auth"
	"github.com/dukerupert/tareas/internal/calsync"
	"github.com/dukerupert/tareas/internal/fallback"
	"github.com/dukerupert/tareas/internal/notify"
	"github.com/dukerupert/tareas/internal/study"
	"github.com/dukerupert/tareas/internal/websocket"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// Broadcaster pushes realtime messages to a user's clients.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid JSON")
	return false
}

// userID returns the authenticated user. RequireAuth guarantees one on
// protected routes; the check covers handlers mounted elsewhere.
func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := auth.Require(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return 0, false
	}
	return id, true
}

// clientErrors maps domain errors that are the caller's fault to statuses.
var clientErrors = []struct {
	err    error
	status int
}{
	{auth.ErrNotAuthenticated, http.StatusUnauthorized},
	{assist.ErrEmptyTitle, http.StatusBadRequest},
	{assist.ErrEmptyMessage, http.StatusBadRequest},
	{assist.ErrTaskNotFound, http.StatusNotFound},
	{study.ErrEmptyTopic, http.StatusBadRequest},
	{study.ErrEmptyQuestion, http.StatusBadRequest},
	{study.ErrEmptyDocument, http.StatusBadRequest},
	{study.ErrDocumentNotFound, http.StatusNotFound},
	{study.ErrExamNotFound, http.StatusNotFound},
	{study.ErrSpeechUnavailable, http.StatusServiceUnavailable},
	{study.ErrNoEmbeddings, http.StatusServiceUnavailable},
	{calsync.ErrInvalidFeedURL, http.StatusBadRequest},
	{calsync.ErrNotConfigured, http.StatusBadRequest},
	{calsync.ErrUserNotFound, http.StatusNotFound},
	{notify.ErrNotFound, http.StatusNotFound},
}

// writeServiceError maps err to a response. Exhausted provider chains and
// unusable answers are upstream failures (502) carrying the last message.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	for _, ce := range clientErrors {
		if errors.Is(err, ce.err) {
			writeError(w, ce.status, err.Error())
			return
		}
	}

	var exhausted *fallback.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		logger.Warn(op+" failed", "attempts", len(exhausted.Attempts), "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, assist.ErrUnusableAnswer), errors.Is(err, study.ErrNoQuestions):
		logger.Warn(op+" failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
