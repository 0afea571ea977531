// Package classify decides which calendar events are assignments worth
// importing and how urgent they are.
package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/dukerupert/tareas/internal/model"
)

var (
	excludeKeywords  = []string{"asistencia", "attendance", "sesión abierta", "session open"}
	categoryKeywords = []string{"assignment", "tarea", "quiz", "examen", "entrega"}
	titleKeywords    = []string{"entrega", "fecha límite", "due", "vence", "tarea"}
)

// Excluded reports whether the event is an attendance or session marker.
func Excluded(ev model.CalendarEvent) bool {
	return containsAny(strings.ToLower(ev.Summary), excludeKeywords)
}

// Actionable reports whether ev should become a task. Any future event is
// provisionally actionable.
func Actionable(ev model.CalendarEvent, now time.Time) bool {
	if Excluded(ev) {
		return false
	}
	for _, c := range ev.Categories {
		if containsAny(strings.ToLower(c), categoryKeywords) {
			return true
		}
	}
	if containsAny(strings.ToLower(ev.Summary), titleKeywords) {
		return true
	}
	return ev.Start.After(now)
}

// Filter keeps the actionable events in their original order.
func Filter(events []model.CalendarEvent, now time.Time) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if Actionable(ev, now) {
			out = append(out, ev)
		}
	}
	return out
}

// PriorityFor maps time to deadline onto a priority. Boundaries fall into
// the more urgent tier.
func PriorityFor(due, now time.Time) model.Priority {
	hours := due.Sub(now).Hours()
	switch {
	case hours < 24:
		return model.PriorityUrgent
	case hours < 72:
		return model.PriorityHigh
	case hours < 168:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

var (
	coursePrefix = regexp.MustCompile(`^\[.*?\]\s*`)
	dueSuffix    = regexp.MustCompile(`(is due|vence)$`)
)

// CleanTitle drops the "[Course]" prefix and "is due"/"vence" suffix Moodle
// adds to summaries.
func CleanTitle(summary string) string {
	s := coursePrefix.ReplaceAllString(summary, "")
	s = dueSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ToTask drafts the task for an imported event. The caller sets UserID.
func ToTask(ev model.CalendarEvent, now time.Time) model.Task {
	desc := ev.Description
	if ev.URL != "" {
		if desc != "" {
			desc += "\n\n"
		}
		desc += "🔗 " + ev.URL
	}

	title := CleanTitle(ev.Summary)
	if title == "" {
		title = strings.TrimSpace(ev.Summary)
	}

	due := ev.Start
	uid := ev.UID
	t := model.Task{
		Title:       title,
		Description: desc,
		Priority:    PriorityFor(due, now),
		Status:      model.StatusPending,
		DueDate:     &due,
		MoodleUID:   &uid,
		MoodleURL:   ev.URL,
		Source:      model.SourceMoodle,
	}
	if len(ev.Categories) > 0 {
		t.CourseName = ev.Categories[0]
	}
	return t
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
