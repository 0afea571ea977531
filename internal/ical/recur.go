package ical

import (
	"fmt"
	"strings"
	"time"

	goical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/dukerupert/tareas/internal/model"
)

// maxOccurrences caps expansion of a single recurring event.
const maxOccurrences = 500

// recurrence is the RRULE and EXDATE data of one VEVENT.
type recurrence struct {
	rule    string
	exDates []string
}

// ParseExpanded parses text and replaces every recurring event with its
// occurrences in [from, to]. Occurrence UIDs carry the occurrence date so
// each one imports as its own task. An override (RECURRENCE-ID) replaces
// the occurrence it names and is never expanded itself.
func (p Parser) ParseExpanded(text string, from, to time.Time) Result {
	res := p.Parse(text)

	rules, err := recurrences(text)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("recurrence: %v", err))
		return res
	}
	if len(rules) == 0 {
		return res
	}

	for _, ev := range res.Events {
		if rec, ok := rules[ev.UID]; ok && ev.RecurrenceID != "" {
			rec.exDates = append(rec.exDates, ev.RecurrenceID)
			rules[ev.UID] = rec
		}
	}

	events := make([]model.CalendarEvent, 0, len(res.Events))
	for _, ev := range res.Events {
		if ev.RecurrenceID != "" {
			if _, ok := rules[ev.UID]; ok && len(ev.RecurrenceID) >= 8 {
				ev.UID += "/" + ev.RecurrenceID[:8]
			}
			events = append(events, ev)
			continue
		}
		rec, ok := rules[ev.UID]
		if !ok {
			events = append(events, ev)
			continue
		}
		occ, err := p.expand(ev, rec, from, to)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("recurrence %s: %v", ev.Summary, err))
			events = append(events, ev)
			continue
		}
		events = append(events, occ...)
	}
	res.Events = events
	return res
}

// recurrences reads RRULE and EXDATE properties keyed by UID.
func recurrences(text string) (map[string]recurrence, error) {
	if !strings.Contains(strings.ToUpper(text), "RRULE") {
		return nil, nil
	}

	cal, err := goical.ParseCalendar(strings.NewReader(text))
	if err != nil {
		return nil, err
	}

	out := make(map[string]recurrence)
	for _, ve := range cal.Events() {
		uid := ve.GetProperty(goical.ComponentPropertyUniqueId)
		rule := ve.GetProperty(goical.ComponentPropertyRrule)
		if uid == nil || rule == nil || rule.Value == "" {
			continue
		}
		rec := recurrence{rule: rule.Value}
		for _, ex := range ve.GetProperties(goical.ComponentPropertyExdate) {
			for _, part := range strings.Split(ex.Value, ",") {
				if part = strings.TrimSpace(part); part != "" {
					rec.exDates = append(rec.exDates, part)
				}
			}
		}
		out[uid.Value] = rec
	}
	return out, nil
}

func (p Parser) expand(ev model.CalendarEvent, rec recurrence, from, to time.Time) ([]model.CalendarEvent, error) {
	r, err := rrule.StrToRRule(rec.rule)
	if err != nil {
		return nil, err
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range rec.exDates {
		t, err := p.parseDate(ex)
		if err != nil {
			continue
		}
		if len(strings.TrimSpace(ex)) == 8 {
			// All-day exclusions match the end-of-day start time.
			t = time.Date(t.Year(), t.Month(), t.Day(), ev.Start.Hour(), ev.Start.Minute(), ev.Start.Second(), 0, ev.Start.Location())
		}
		set.ExDate(t.In(ev.Start.Location()))
	}

	times := set.Between(from.In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	if len(times) > maxOccurrences {
		times = times[:maxOccurrences]
	}

	var duration time.Duration
	if ev.End != nil {
		duration = ev.End.Sub(ev.Start)
	}

	out := make([]model.CalendarEvent, 0, len(times))
	for _, start := range times {
		occ := ev
		occ.UID = ev.UID + "/" + start.Format("20060102")
		occ.Start = start
		if ev.End != nil {
			end := start.Add(duration)
			occ.End = &end
		}
		occ.Categories = append([]string(nil), ev.Categories...)
		out = append(out, occ)
	}
	return out, nil
}
