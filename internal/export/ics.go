// Package export renders calendar events as an iCalendar feed.
package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/timeutil"
)

// ProductID identifies calbot as the producer of exported calendars.
const ProductID = "-//calbot//calendar export//EN"

// ContentType is the media type of Write's output.
const ContentType = "text/calendar; charset=utf-8"

// Encoder converts events into VCALENDAR documents.
type Encoder struct {
	timezone string
	now      func() time.Time
}

// NewEncoder creates an Encoder. timezone is used for event times that carry no offset.
func NewEncoder(timezone string, now func() time.Time) *Encoder {
	if now == nil {
		now = time.Now
	}
	return &Encoder{timezone: timezone, now: now}
}

// Write encodes events as one VCALENDAR to w. Events whose start cannot be read are skipped.
func (e *Encoder) Write(w io.Writer, events []domain.CalendarEvent) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	stamp := e.now().UTC()
	for _, ev := range events {
		ve, err := e.component(ev, stamp)
		if err != nil {
			continue
		}
		cal.Children = append(cal.Children, ve)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

// Bytes is Write into memory.
func (e *Encoder) Bytes(events []domain.CalendarEvent) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Encoder) component(ev domain.CalendarEvent, stamp time.Time) (*ical.Component, error) {
	ve := ical.NewComponent(ical.CompEvent)

	uid := ev.ID
	if uid == "" {
		uid = uuid.NewString()
	}
	ve.Props.SetText(ical.PropUID, uid+"@calbot")
	ve.Props.SetText(ical.PropSummary, ev.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)

	if ev.AllDay {
		start, err := timeutil.ParseDate(ev.Start.Date, "UTC")
		if err != nil {
			return nil, err
		}
		ve.Props.SetDate(ical.PropDateTimeStart, start)
		if end, err := timeutil.ParseDate(ev.End.Date, "UTC"); err == nil && end.After(start) {
			ve.Props.SetDate(ical.PropDateTimeEnd, end)
		} else {
			ve.Props.SetDate(ical.PropDateTimeEnd, start.AddDate(0, 0, 1))
		}
	} else {
		start, ok := ev.StartTime(e.timezone)
		if !ok {
			return nil, fmt.Errorf("event %q has no start", ev.ID)
		}
		end, ok := ev.End.Time(e.timezone)
		if !ok || !end.After(start) {
			end = start.Add(domain.DefaultDuration)
		}
		ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	}

	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		ve.Props.SetText(ical.PropLocation, ev.Location)
	}
	return ve, nil
}
