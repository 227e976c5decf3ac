package resolve

import (
	"strings"
	"time"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/timeutil"
)

// Diff builds the patch that turns ev into what the candidate describes. Only differing
// fields are set. An explicit new title renames the event; otherwise a candidate title that
// merely names the event is not a rename.
func Diff(c *domain.EventCandidate, ev domain.CalendarEvent, timezone string) domain.EventPatch {
	var patch domain.EventPatch

	if c.NewTitle != nil {
		if title := strings.TrimSpace(*c.NewTitle); title != "" && title != ev.Title {
			patch.Title = &title
		}
	} else if title := strings.TrimSpace(c.Title); title != "" && !TitlesRelated(title, ev.Title) {
		patch.Title = &title
	}
	if c.Location != nil && *c.Location != ev.Location {
		location := *c.Location
		patch.Location = &location
	}
	if c.Description != nil && *c.Description != ev.Description {
		description := *c.Description
		patch.Description = &description
	}

	start, end, allDay, ok := candidateTimes(c, timezone)
	if !ok || sameTimes(ev, start, end, allDay, timezone) {
		return patch
	}
	patch.Start = &start
	patch.End = &end
	if allDay != ev.AllDay {
		patch.AllDay = &allDay
	}
	return patch
}

// candidateTimes renders the candidate's time in provider form.
func candidateTimes(c *domain.EventCandidate, timezone string) (start, end domain.EventTime, allDay, ok bool) {
	if c.AllDay && c.Date != nil {
		next, err := timeutil.NextDay(*c.Date)
		if err != nil {
			return start, end, false, false
		}
		return domain.EventTime{Date: *c.Date}, domain.EventTime{Date: next}, true, true
	}

	if c.StartDateTime == nil {
		return start, end, false, false
	}
	startTime, _, err := timeutil.ParseDateTime(*c.StartDateTime, timezone)
	if err != nil {
		return start, end, false, false
	}
	endTime := startTime.Add(domain.DefaultDuration)
	if c.EndDateTime != nil {
		if t, _, err := timeutil.ParseDateTime(*c.EndDateTime, timezone); err == nil && t.After(startTime) {
			endTime = t
		}
	}

	zone := timezone
	if zone == "" {
		zone = "UTC"
	}
	return domain.EventTime{DateTime: startTime.Format(time.RFC3339), TimeZone: zone},
		domain.EventTime{DateTime: endTime.Format(time.RFC3339), TimeZone: zone},
		false, true
}

func sameTimes(ev domain.CalendarEvent, start, end domain.EventTime, allDay bool, timezone string) bool {
	if ev.AllDay != allDay {
		return false
	}
	if allDay {
		return ev.Start.Date == start.Date && ev.End.Date == end.Date
	}
	evStart, ok1 := ev.Start.Time(timezone)
	evEnd, ok2 := ev.End.Time(timezone)
	newStart, ok3 := start.Time(timezone)
	newEnd, ok4 := end.Time(timezone)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	return evStart.Equal(newStart) && evEnd.Equal(newEnd)
}
