package model

import "time"

// CalendarEvent is a VEVENT read from a calendar feed. It is never persisted;
// it is either converted to a Task or discarded.
type CalendarEvent struct {
	UID         string     `json:"uid"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end,omitempty"`
	Location    string     `json:"location,omitempty"`
	Categories  []string   `json:"categories"`
	URL         string     `json:"url,omitempty"`

	// RecurrenceID is set on an override of one occurrence of a recurring
	// event.
	RecurrenceID string `json:"recurrence_id,omitempty"`
}
