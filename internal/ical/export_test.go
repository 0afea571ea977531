package ical

import (
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/tareas/internal/model"
)

func TestExport(t *testing.T) {
	due := time.Date(2025, 4, 1, 15, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: 7, Title: "Informe final", Description: "Capítulos 1-3", Priority: model.PriorityUrgent, Status: model.StatusPending, DueDate: &due, CourseName: "Física", Tags: []model.Tag{{Name: "lab"}}},
		{ID: 8, Title: "No due date", Priority: model.PriorityLow, Status: model.StatusPending},
	}

	out := Export(tasks, ExportOptions{Name: "Tareas", Now: due})

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"UID:task-7@tareas",
		"SUMMARY:Informe final",
		"DTSTART:20250401T150000Z",
		"PRIORITY:1",
		"STATUS:NEEDS-ACTION",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "task-8@tareas") {
		t.Error("tasks without a due date should not be exported")
	}

	// The exported feed reads back through the parser.
	res := Parse(out)
	if len(res.Events) != 1 {
		t.Fatalf("re-parsed events = %d, want 1 (errors %v)", len(res.Events), res.Errors)
	}
	if !res.Events[0].Start.Equal(due) {
		t.Errorf("re-parsed start = %v, want %v", res.Events[0].Start, due)
	}
}
