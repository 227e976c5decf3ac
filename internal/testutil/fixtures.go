package testutil

import (
	"encoding/json"
	"time"

	"google.golang.org/api/calendar/v3"
)

// EventBuilder builds events to seed into the fake calendar
type EventBuilder struct {
	event *calendar.Event
}

// NewEventBuilder creates an hour-long timed event with defaults
func NewEventBuilder() *EventBuilder {
	start := time.Date(2025, 3, 6, 9, 0, 0, 0, time.UTC)
	return &EventBuilder{
		event: &calendar.Event{
			Summary: "Test Event",
			Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
			End:     &calendar.EventDateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
		},
	}
}

// WithTitle sets the summary
func (b *EventBuilder) WithTitle(title string) *EventBuilder {
	b.event.Summary = title
	return b
}

// WithDescription sets the description
func (b *EventBuilder) WithDescription(desc string) *EventBuilder {
	b.event.Description = desc
	return b
}

// WithLocation sets the location
func (b *EventBuilder) WithLocation(location string) *EventBuilder {
	b.event.Location = location
	return b
}

// At makes the event timed, starting at start and lasting d
func (b *EventBuilder) At(start time.Time, d time.Duration) *EventBuilder {
	b.event.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)}
	b.event.End = &calendar.EventDateTime{DateTime: start.Add(d).Format(time.RFC3339)}
	return b
}

// AllDay makes the event an all-day event on date (YYYY-MM-DD)
func (b *EventBuilder) AllDay(date string) *EventBuilder {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic("testutil: bad all-day date " + date)
	}
	b.event.Start = &calendar.EventDateTime{Date: date}
	b.event.End = &calendar.EventDateTime{Date: day.AddDate(0, 0, 1).Format("2006-01-02")}
	return b
}

// Build returns the event
func (b *EventBuilder) Build() *calendar.Event {
	cp := *b.event
	return &cp
}

// ReplyBuilder builds the JSON the model answers an extraction prompt with
type ReplyBuilder struct {
	fields map[string]any
}

// NewReplyBuilder creates a reply for a confident, fully specified timed event
func NewReplyBuilder(title string) *ReplyBuilder {
	return &ReplyBuilder{fields: map[string]any{
		"title":                  title,
		"description":            nil,
		"location":               nil,
		"startDateTime":          nil,
		"endDateTime":            nil,
		"date":                   nil,
		"allDay":                 false,
		"confidence":             0.9,
		"needsClarification":     false,
		"clarificationQuestions": []string{},
	}}
}

// Timed sets start and end (local date-times without offset)
func (b *ReplyBuilder) Timed(start, end string) *ReplyBuilder {
	b.fields["startDateTime"] = start
	if end != "" {
		b.fields["endDateTime"] = end
	}
	return b
}

// OnDate makes the reply an all-day event
func (b *ReplyBuilder) OnDate(date string) *ReplyBuilder {
	b.fields["date"] = date
	b.fields["allDay"] = true
	return b
}

// WithLocation sets the location
func (b *ReplyBuilder) WithLocation(location string) *ReplyBuilder {
	b.fields["location"] = location
	return b
}

// WithConfidence sets the confidence
func (b *ReplyBuilder) WithConfidence(c float64) *ReplyBuilder {
	b.fields["confidence"] = c
	return b
}

// NeedsClarification marks the reply as needing the given answers
func (b *ReplyBuilder) NeedsClarification(questions ...string) *ReplyBuilder {
	b.fields["needsClarification"] = true
	b.fields["clarificationQuestions"] = questions
	return b
}

// JSON renders the reply
func (b *ReplyBuilder) JSON() string {
	data, err := json.Marshal(b.fields)
	if err != nil {
		panic(err)
	}
	return string(data)
}
