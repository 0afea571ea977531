package ical

import (
	"strings"
	"testing"
	"time"
)

func feed(lines ...string) string {
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" + strings.Join(lines, "\r\n") + "\r\nEND:VCALENDAR\r\n"
}

func TestParseEvent(t *testing.T) {
	loc := time.FixedZone("COT", -5*3600)
	text := feed(
		"BEGIN:VEVENT",
		"UID:1234@moodle.example.com",
		"SUMMARY:Tarea 2\\, parte A",
		"DESCRIPTION:Subir el informe\\nVer https://moodle.example.com/mod/assign/view.php?id=7 para detalles",
		"DTSTART;TZID=America/Bogota:20250310T180000",
		"DTEND:20250310T190000Z",
		"LOCATION:Aula 3\\; edificio B",
		"CATEGORIES:Cálculo I, Tarea",
		"END:VEVENT",
	)

	res := Parser{Location: loc}.Parse(text)
	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v, want none", res.Errors)
	}
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(res.Events))
	}
	ev := res.Events[0]

	if ev.UID != "1234@moodle.example.com" {
		t.Errorf("uid = %q", ev.UID)
	}
	if ev.Summary != "Tarea 2, parte A" {
		t.Errorf("summary = %q, want %q", ev.Summary, "Tarea 2, parte A")
	}
	if !strings.Contains(ev.Description, "informe\nVer") {
		t.Errorf("description not unescaped: %q", ev.Description)
	}
	if ev.Location != "Aula 3; edificio B" {
		t.Errorf("location = %q", ev.Location)
	}
	want := time.Date(2025, 3, 10, 18, 0, 0, 0, loc)
	if !ev.Start.Equal(want) {
		t.Errorf("start = %v, want %v", ev.Start, want)
	}
	if ev.End == nil || !ev.End.Equal(time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v, want 19:00 UTC", ev.End)
	}
	if len(ev.Categories) != 2 || ev.Categories[0] != "Cálculo I" || ev.Categories[1] != "Tarea" {
		t.Errorf("categories = %q", ev.Categories)
	}
	if ev.URL != "https://moodle.example.com/mod/assign/view.php?id=7" {
		t.Errorf("url = %q", ev.URL)
	}
}

func TestParseExplicitURLWins(t *testing.T) {
	text := feed(
		"BEGIN:VEVENT",
		"UID:a",
		"SUMMARY:Quiz",
		"DTSTART:20250101T100000Z",
		"URL:https://explicit.example.com/quiz",
		"DESCRIPTION:see https://other.example.com",
		"END:VEVENT",
	)
	res := Parse(text)
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(res.Events))
	}
	if got := res.Events[0].URL; got != "https://explicit.example.com/quiz" {
		t.Errorf("url = %q, want explicit url", got)
	}
}

func TestParseUnfolding(t *testing.T) {
	text := "BEGIN:VEVENT\r\nUID:fold\r\nSUMMARY:Entrega del\r\n  proyecto final\r\nDTSTART:20250101T100000Z\r\nEND:VEVENT\r\n"
	res := Parse(text)
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(res.Events))
	}
	if got := res.Events[0].Summary; got != "Entrega del proyecto final" {
		t.Errorf("summary = %q, want %q", got, "Entrega del proyecto final")
	}
}

func TestParseDates(t *testing.T) {
	loc := time.FixedZone("X", 2*3600)
	p := Parser{Location: loc}

	tests := []struct {
		in   string
		want time.Time
	}{
		{"20250315", time.Date(2025, 3, 15, 23, 59, 59, 0, loc)},
		{"20250315T083000", time.Date(2025, 3, 15, 8, 30, 0, 0, loc)},
		{"20250315T083000Z", time.Date(2025, 3, 15, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := p.parseDate(tt.in)
		if err != nil {
			t.Errorf("parseDate(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := p.parseDate("not-a-date"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestParseIncompleteEvents(t *testing.T) {
	text := feed(
		"BEGIN:VEVENT",
		"UID:no-summary",
		"DTSTART:20250101T100000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:no-start",
		"SUMMARY:Lab report",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:No uid",
		"DTSTART:20250101T100000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:bad-start",
		"SUMMARY:Broken date",
		"DTSTART:tomorrow",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:ok",
		"SUMMARY:Valid",
		"DTSTART:20250101",
		"X-UNKNOWN:ignored",
		"END:VEVENT",
	)

	res := Parse(text)
	if len(res.Events) != 1 || res.Events[0].UID != "ok" {
		t.Fatalf("events = %+v, want only ok", res.Events)
	}
	want := []string{
		"incomplete event: untitled",
		"incomplete event: Lab report",
		"incomplete event: No uid",
		"incomplete event: Broken date",
	}
	if len(res.Errors) != len(want) {
		t.Fatalf("errors = %q, want %q", res.Errors, want)
	}
	for i := range want {
		if res.Errors[i] != want[i] {
			t.Errorf("errors[%d] = %q, want %q", i, res.Errors[i], want[i])
		}
	}
	for _, ev := range res.Events {
		if ev.UID == "" || ev.Summary == "" || ev.Start.IsZero() {
			t.Errorf("emitted incomplete event %+v", ev)
		}
	}
}

func TestParseUnterminatedBlockDropped(t *testing.T) {
	text := "BEGIN:VEVENT\nUID:x\nSUMMARY:Dangling\nDTSTART:20250101T100000Z\n"
	res := Parse(text)
	if len(res.Events) != 0 {
		t.Errorf("events = %d, want 0", len(res.Events))
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %q, want none", res.Errors)
	}
}

func TestParseLowercasePropertyNames(t *testing.T) {
	text := "BEGIN:VEVENT\nuid:lower\nsummary:Quiz 1\ndtstart;value=date:20250201\nEND:VEVENT\n"
	res := Parse(text)
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(res.Events))
	}
	if res.Events[0].Summary != "Quiz 1" {
		t.Errorf("summary = %q", res.Events[0].Summary)
	}
}
