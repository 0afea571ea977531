// Package ical reads Moodle style calendar feeds into CalendarEvents and
// writes tasks back out as an iCalendar feed.
package ical

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dukerupert/tareas/internal/model"
)

// Result holds the events that could be read and one message per block
// that could not. Malformed blocks never abort a parse.
type Result struct {
	Events []model.CalendarEvent `json:"events"`
	Errors []string              `json:"errors"`
}

// Parser decodes floating times and all-day dates in Location.
type Parser struct {
	Location *time.Location
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// Parse reads text with the local time zone.
func Parse(text string) Result {
	return Parser{}.Parse(text)
}

func (p Parser) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Parse scans unfolded lines once. Only VEVENT blocks carrying UID, SUMMARY
// and a readable DTSTART become events.
func (p Parser) Parse(text string) Result {
	res := Result{Events: []model.CalendarEvent{}, Errors: []string{}}

	var (
		inEvent bool
		cur     model.CalendarEvent
		hasURL  bool
		badDate bool
	)

	for _, line := range unfold(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch strings.ToUpper(line) {
		case "BEGIN:VEVENT":
			inEvent = true
			cur = model.CalendarEvent{Categories: []string{}}
			hasURL, badDate = false, false
			continue
		case "END:VEVENT":
			if !inEvent {
				continue
			}
			inEvent = false
			if cur.UID == "" || cur.Summary == "" || cur.Start.IsZero() || badDate {
				title := cur.Summary
				if title == "" {
					title = "untitled"
				}
				res.Errors = append(res.Errors, fmt.Sprintf("incomplete event: %s", title))
				continue
			}
			if !hasURL && cur.URL == "" {
				cur.URL = urlPattern.FindString(cur.Description)
			}
			res.Events = append(res.Events, cur)
			continue
		}

		if !inEvent {
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name, _, _ = strings.Cut(name, ";")

		switch strings.ToUpper(name) {
		case "UID":
			cur.UID = value
		case "SUMMARY":
			cur.Summary = unescape(value)
		case "DESCRIPTION":
			cur.Description = unescape(value)
		case "LOCATION":
			cur.Location = unescape(value)
		case "URL":
			cur.URL = value
			hasURL = true
		case "CATEGORIES":
			for _, c := range strings.Split(unescape(value), ",") {
				if c = strings.TrimSpace(c); c != "" {
					cur.Categories = append(cur.Categories, c)
				}
			}
		case "DTSTART":
			t, err := p.parseDate(value)
			if err != nil {
				badDate = true
				continue
			}
			cur.Start = t
		case "RECURRENCE-ID":
			cur.RecurrenceID = value
		case "DTEND":
			if t, err := p.parseDate(value); err == nil {
				cur.End = &t
			}
		}
	}

	return res
}

// unfold joins continuation lines (leading space or tab) onto the line
// before them.
func unfold(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if len(l) > 0 && (l[0] == ' ' || l[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += l[1:]
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescape(s string) string {
	return unescaper.Replace(s)
}

// parseDate accepts YYYYMMDD (end of that day) and YYYYMMDDTHHMMSS with an
// optional trailing Z for UTC.
func (p Parser) parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	loc := p.location()

	switch {
	case len(v) == 8:
		d, err := time.ParseInLocation("20060102", v, loc)
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc), nil
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	default:
		return time.ParseInLocation("20060102T150405", v, loc)
	}
}
