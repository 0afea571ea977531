package ical

import (
	"fmt"
	"strings"
	"time"

	goical "github.com/arran4/golang-ical"

	"github.com/dukerupert/tareas/internal/model"
)

// ExportOptions controls the generated feed.
type ExportOptions struct {
	Name string
	Now  time.Time
}

// iCalendar PRIORITY: 1 is highest, 9 lowest.
var exportPriority = map[model.Priority]string{
	model.PriorityUrgent: "1",
	model.PriorityHigh:   "3",
	model.PriorityMedium: "5",
	model.PriorityLow:    "9",
}

var exportStatus = map[model.Status]string{
	model.StatusPending:    "NEEDS-ACTION",
	model.StatusInProgress: "IN-PROCESS",
	model.StatusCompleted:  "COMPLETED",
	model.StatusCancelled:  "CANCELLED",
}

// Export renders every task that has a due date as a VEVENT.
func Export(tasks []model.Task, opts ExportOptions) string {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := goical.NewCalendar()
	cal.SetMethod(goical.MethodPublish)
	cal.SetProductId("-//tareas//tasks//EN")
	if opts.Name != "" {
		cal.SetName(opts.Name)
	}

	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		ev := cal.AddEvent(fmt.Sprintf("task-%d@tareas", t.ID))
		ev.SetDtStampTime(opts.Now.UTC())
		ev.SetSummary(t.Title)
		if t.Description != "" {
			ev.SetDescription(t.Description)
		}
		ev.SetStartAt(t.DueDate.UTC())
		ev.SetEndAt(t.DueDate.UTC())
		if p, ok := exportPriority[t.Priority]; ok {
			ev.SetProperty(goical.ComponentPropertyPriority, p)
		}
		if s, ok := exportStatus[t.Status]; ok {
			ev.SetProperty(goical.ComponentPropertyStatus, s)
		}
		if t.MoodleURL != "" {
			ev.SetURL(t.MoodleURL)
		}

		var cats []string
		if t.CourseName != "" {
			cats = append(cats, t.CourseName)
		}
		for _, tag := range t.Tags {
			cats = append(cats, tag.Name)
		}
		if len(cats) > 0 {
			ev.SetProperty(goical.ComponentPropertyCategories, strings.Join(cats, ","))
		}
	}

	return cal.Serialize()
}
