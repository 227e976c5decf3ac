package domain

import (
	"strings"
	"time"

	"github.com/omriShneor/calbot/internal/timeutil"
)

// DateLayout is the format of all-day dates exchanged with the model and the provider.
const DateLayout = "2006-01-02"

// DefaultDuration is applied to timed events that arrive without an end.
const DefaultDuration = time.Hour

// EventCandidate is the structured interpretation of a user utterance or announcement.
// Optional values are pointers so an absent field survives JSON round trips as absent.
type EventCandidate struct {
	Title                  string   `json:"title"`
	NewTitle               *string  `json:"newTitle,omitempty"`
	Description            *string  `json:"description,omitempty"`
	Location               *string  `json:"location,omitempty"`
	StartDateTime          *string  `json:"startDateTime,omitempty"`
	EndDateTime            *string  `json:"endDateTime,omitempty"`
	Date                   *string  `json:"date,omitempty"`
	AllDay                 bool     `json:"allDay"`
	Confidence             float64  `json:"confidence"`
	NeedsClarification     bool     `json:"needsClarification"`
	ClarificationQuestions []string `json:"clarificationQuestions"`
}

// EventTime is one boundary of a calendar event. Exactly one of DateTime or Date is set.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// IsZero reports whether neither representation is set.
func (t EventTime) IsZero() bool {
	return t.DateTime == "" && t.Date == ""
}

// CalendarEvent is a provider-neutral calendar entry.
// For all-day events End.Date is exclusive: the day after the last day.
type CalendarEvent struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	AllDay      bool      `json:"allDay"`
}

// StartTime resolves the start boundary to an instant. See EventTime.Time.
func (e *CalendarEvent) StartTime(defaultZone string) (time.Time, bool) {
	return e.Start.Time(defaultZone)
}

// Time resolves the boundary to an instant. Values without an offset are read in the
// boundary's own zone, then defaultZone. Dates resolve to midnight.
func (t EventTime) Time(defaultZone string) (time.Time, bool) {
	zone := t.TimeZone
	if zone == "" {
		zone = defaultZone
	}
	if t.DateTime != "" {
		parsed, _, err := timeutil.ParseDateTime(t.DateTime, zone)
		return parsed, err == nil
	}
	if t.Date != "" {
		parsed, err := timeutil.ParseDate(t.Date, zone)
		return parsed, err == nil
	}
	return time.Time{}, false
}

// EventPatch is a partial update. Nil fields are left untouched.
// Start and End travel together when a time change is requested.
type EventPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Start       *EventTime `json:"start,omitempty"`
	End         *EventTime `json:"end,omitempty"`
	AllDay      *bool      `json:"allDay,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil &&
		p.Start == nil && p.End == nil && p.AllDay == nil
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
