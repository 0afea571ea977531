package handler

import (
	"net/http"

	"github.com/dukerupert/tareas/internal/study"
)

// PomodoroHandler exposes each user's focus timer. State changes are also
// pushed over the websocket while the timer runs.
type PomodoroHandler struct {
	timers *study.Pomodoros
}

func NewPomodoroHandler(timers *study.Pomodoros) *PomodoroHandler {
	return &PomodoroHandler{timers: timers}
}

// State handles GET /api/pomodoro
func (h *PomodoroHandler) State(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.timers.For(uid).State())
}

// Action handles POST /api/pomodoro/{action}: start, toggle, stop or reset.
func (h *PomodoroHandler) Action(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	p := h.timers.For(uid)

	var st study.PomodoroState
	switch r.PathValue("action") {
	case "start":
		st = p.Start()
	case "toggle":
		st = p.Toggle()
	case "stop":
		st = p.Stop()
	case "reset":
		st = p.Reset()
	default:
		writeError(w, http.StatusNotFound, "unknown pomodoro action")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
