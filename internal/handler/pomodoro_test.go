package handler

import (
	"net/http"
	"testing"

	"github.com/dukerupert/tareas/internal/study"
)

func TestPomodoroActions(t *testing.T) {
	timers := study.NewPomodoros(study.DefaultPomodoroConfig(), nil)
	t.Cleanup(timers.StopAll)
	h := NewPomodoroHandler(timers)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pomodoro", h.State)
	mux.HandleFunc("POST /api/pomodoro/{action}", h.Action)
	srv := as(1, mux)

	st := decode[study.PomodoroState](t, do(t, srv, "GET", "/api/pomodoro", nil))
	if st.Active || st.TimeRemaining != 25*60 {
		t.Errorf("initial state = %+v", st)
	}

	st = decode[study.PomodoroState](t, do(t, srv, "POST", "/api/pomodoro/start", nil))
	if !st.Active || st.Paused {
		t.Errorf("after start = %+v", st)
	}
	st = decode[study.PomodoroState](t, do(t, srv, "POST", "/api/pomodoro/toggle", nil))
	if !st.Paused {
		t.Errorf("after toggle = %+v, want paused", st)
	}
	st = decode[study.PomodoroState](t, do(t, srv, "POST", "/api/pomodoro/reset", nil))
	if st.Active || st.SessionCount != 0 {
		t.Errorf("after reset = %+v", st)
	}

	if rec := do(t, srv, "POST", "/api/pomodoro/snooze", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action = %d, want 404", rec.Code)
	}

	other := decode[study.PomodoroState](t, do(t, as(2, mux), "GET", "/api/pomodoro", nil))
	if other.Active {
		t.Error("timers are shared between users")
	}
}
