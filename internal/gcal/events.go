package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/timeutil"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const (
	defaultListSize = 10
	maxListSize     = 250
	untitledEvent   = "Untitled Event"
)

var ErrEventNotFound = errors.New("google calendar event not found")

// IsEventNotFound returns true when a Google Calendar event no longer exists.
func IsEventNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

// classifyError maps Google API failures onto the domain error taxonomy.
func classifyError(op string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized:
			return &domain.AuthError{Err: err}
		case http.StatusNotFound, http.StatusGone:
			return &domain.ProviderError{Op: op, Err: fmt.Errorf("%w: %s", ErrEventNotFound, gErr.Message)}
		}
		if gErr.Message != "" {
			return &domain.ProviderError{Op: op, Err: errors.New(gErr.Message)}
		}
	}
	return &domain.ProviderError{Op: op, Err: err}
}

// Create inserts ev into the primary calendar.
func (c *Client) Create(ctx context.Context, cred domain.Credential, ev domain.CalendarEvent) (*domain.CalendarEvent, error) {
	if ev.Start.IsZero() {
		return nil, domain.NewValidationError("an event needs a start date or time")
	}
	start, end, err := c.normalizeTimes(ev.Start, ev.End, ev.AllDay || ev.Start.Date != "")
	if err != nil {
		return nil, err
	}

	srv, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	item := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       start,
		End:         end,
	}

	created, err := srv.Events.Insert(primaryCalendar, item).Context(ctx).Do()
	if err != nil {
		return nil, classifyError("create", err)
	}

	c.logger.Info("created calendar event", "event_id", created.Id, "all_day", start.Date != "")
	result := toDomainEvent(created)
	return &result, nil
}

// List returns upcoming events from now, soonest first. maxResults <= 0 means 10.
func (c *Client) List(ctx context.Context, cred domain.Credential, maxResults int) ([]domain.CalendarEvent, error) {
	if maxResults <= 0 {
		maxResults = defaultListSize
	}
	if maxResults > maxListSize {
		maxResults = maxListSize
	}

	srv, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	events, err := srv.Events.List(primaryCalendar).
		TimeMin(c.now().Format(time.RFC3339)).
		MaxResults(int64(maxResults)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyError("list", err)
	}

	result := make([]domain.CalendarEvent, 0, len(events.Items))
	for _, item := range events.Items {
		if item == nil || item.Status == "cancelled" {
			continue
		}
		result = append(result, toDomainEvent(item))
	}
	return result, nil
}

// Get fetches a single event.
func (c *Client) Get(ctx context.Context, cred domain.Credential, eventID string) (*domain.CalendarEvent, error) {
	srv, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	item, err := c.fetch(ctx, srv, eventID)
	if err != nil {
		return nil, err
	}
	result := toDomainEvent(item)
	return &result, nil
}

func (c *Client) fetch(ctx context.Context, srv *calendar.Service, eventID string) (*calendar.Event, error) {
	if eventID == "" {
		return nil, domain.NewValidationError("Event ID is required")
	}
	item, err := srv.Events.Get(primaryCalendar, eventID).Context(ctx).Do()
	if err != nil {
		return nil, classifyError("get", err)
	}
	// Cancelled means the event was deleted on the Google Calendar side.
	if item.Status == "cancelled" {
		return nil, &domain.ProviderError{Op: "get", Err: ErrEventNotFound}
	}
	return item, nil
}

// Update fetches the event, applies patch on top of it and writes it back. Fields the
// patch leaves nil keep their stored values, including fields this service never models
// (attendees, reminders, colors).
func (c *Client) Update(ctx context.Context, cred domain.Credential, eventID string, patch domain.EventPatch) (*domain.CalendarEvent, error) {
	srv, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	existing, err := c.fetch(ctx, srv, eventID)
	if err != nil {
		return nil, err
	}

	if err := c.applyPatch(existing, patch); err != nil {
		return nil, err
	}

	updated, err := srv.Events.Update(primaryCalendar, eventID, existing).Context(ctx).Do()
	if err != nil {
		return nil, classifyError("update", err)
	}

	c.logger.Info("updated calendar event", "event_id", eventID)
	result := toDomainEvent(updated)
	return &result, nil
}

// applyPatch merges patch into item in place.
func (c *Client) applyPatch(item *calendar.Event, patch domain.EventPatch) error {
	if patch.Title != nil {
		item.Summary = *patch.Title
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.Location != nil {
		item.Location = *patch.Location
	}

	if patch.Start == nil && patch.End == nil && patch.AllDay == nil {
		return nil
	}

	current := toDomainEvent(item)
	wasAllDay := current.AllDay

	allDay := wasAllDay
	switch {
	case patch.AllDay != nil:
		allDay = *patch.AllDay
	case patch.Start != nil:
		allDay = patch.Start.Date != "" && patch.Start.DateTime == ""
	}

	start := current.Start
	end := current.End
	switch {
	case patch.Start != nil:
		start = *patch.Start
		if patch.End != nil {
			end = *patch.End
		} else if allDay == wasAllDay {
			end = c.shiftEnd(current, start, allDay)
		} else {
			end = domain.EventTime{}
		}
	case allDay != wasAllDay:
		// Representation switch without a new start.
		if !allDay {
			return domain.NewValidationError("a start dateTime is required to change an all-day event into a timed event")
		}
		t, ok := current.Start.Time(c.timezone)
		if !ok {
			return domain.NewValidationError("event has an unreadable start time")
		}
		start = domain.EventTime{Date: t.Format(domain.DateLayout)}
		end = domain.EventTime{}
		if patch.End != nil {
			end = *patch.End
		}
	case patch.End != nil:
		end = *patch.End
	}

	if allDay {
		if start.Date == "" && start.DateTime != "" {
			t, ok := start.Time(c.timezone)
			if !ok {
				return domain.NewValidationError("invalid start time: %s", start.DateTime)
			}
			start = domain.EventTime{Date: t.In(tzOrUTC(c.timezone)).Format(domain.DateLayout)}
		}
		if end.Date == "" {
			end = domain.EventTime{}
		}
	} else if start.DateTime == "" {
		return domain.NewValidationError("a start dateTime is required for a timed event")
	}

	gStart, gEnd, err := c.normalizeTimes(start, end, allDay)
	if err != nil {
		return err
	}
	item.Start = gStart
	item.End = gEnd
	return nil
}

// shiftEnd keeps the event's existing duration when only the start moves.
func (c *Client) shiftEnd(current domain.CalendarEvent, newStart domain.EventTime, allDay bool) domain.EventTime {
	oldStart, ok1 := current.Start.Time(c.timezone)
	oldEnd, ok2 := current.End.Time(c.timezone)
	start, ok3 := newStart.Time(c.timezone)
	if !ok1 || !ok2 || !ok3 || !oldEnd.After(oldStart) {
		return domain.EventTime{}
	}
	if allDay {
		days := int(oldEnd.Sub(oldStart).Hours()/24 + 0.5)
		return domain.EventTime{Date: start.AddDate(0, 0, days).Format(domain.DateLayout)}
	}
	return domain.EventTime{
		DateTime: start.Add(oldEnd.Sub(oldStart)).Format(time.RFC3339),
		TimeZone: newStart.TimeZone,
	}
}

// normalizeTimes validates a start/end pair and renders it in Google's representation.
// All-day ends are exclusive and default to the next day; timed ends default to one hour
// after the start.
func (c *Client) normalizeTimes(start, end domain.EventTime, allDay bool) (*calendar.EventDateTime, *calendar.EventDateTime, error) {
	if allDay {
		if start.Date == "" {
			return nil, nil, domain.NewValidationError("a start date is required for an all-day event")
		}
		startDay, err := timeutil.ParseDate(start.Date, "UTC")
		if err != nil {
			return nil, nil, domain.NewValidationError("invalid start date: %s", start.Date)
		}
		endDate := end.Date
		if endDate != "" {
			endDay, err := timeutil.ParseDate(endDate, "UTC")
			if err != nil {
				return nil, nil, domain.NewValidationError("invalid end date: %s", endDate)
			}
			if !endDay.After(startDay) {
				endDate = ""
			}
		}
		if endDate == "" {
			endDate = startDay.AddDate(0, 0, 1).Format(domain.DateLayout)
		}
		return &calendar.EventDateTime{Date: start.Date}, &calendar.EventDateTime{Date: endDate}, nil
	}

	if start.DateTime == "" {
		return nil, nil, domain.NewValidationError("a start dateTime is required for a timed event")
	}
	zone := start.TimeZone
	if zone == "" {
		zone = c.timezone
	}
	if _, fallback := timeutil.ResolveLocation(zone); fallback {
		zone = "UTC"
	}

	startTime, _, err := timeutil.ParseDateTime(start.DateTime, zone)
	if err != nil {
		return nil, nil, domain.NewValidationError("invalid start dateTime: %s", start.DateTime)
	}

	endTime := startTime.Add(domain.DefaultDuration)
	if end.DateTime != "" {
		endZone := end.TimeZone
		if endZone == "" {
			endZone = zone
		}
		parsed, _, err := timeutil.ParseDateTime(end.DateTime, endZone)
		if err != nil {
			return nil, nil, domain.NewValidationError("invalid end dateTime: %s", end.DateTime)
		}
		if !parsed.After(startTime) {
			return nil, nil, domain.NewValidationError("event end must be after its start")
		}
		endTime = parsed
	}

	return &calendar.EventDateTime{DateTime: startTime.Format(time.RFC3339), TimeZone: zone},
		&calendar.EventDateTime{DateTime: endTime.Format(time.RFC3339), TimeZone: zone},
		nil
}

func toDomainEvent(item *calendar.Event) domain.CalendarEvent {
	ev := domain.CalendarEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
	}
	if ev.Title == "" {
		ev.Title = untitledEvent
	}
	if item.Start != nil {
		ev.Start = domain.EventTime{DateTime: item.Start.DateTime, Date: item.Start.Date, TimeZone: item.Start.TimeZone}
		ev.AllDay = item.Start.Date != ""
	}
	if item.End != nil {
		ev.End = domain.EventTime{DateTime: item.End.DateTime, Date: item.End.Date, TimeZone: item.End.TimeZone}
	}
	return ev
}

func tzOrUTC(zone string) *time.Location {
	loc, _ := timeutil.ResolveLocation(zone)
	return loc
}
