package chat

import (
	"fmt"
	"strings"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/timeutil"
)

const (
	msgLoginRequired    = "Please login with Google Calendar first to use this feature."
	msgSessionExpired   = "Your Google Calendar session has expired. Please login again."
	msgNoUpcoming       = "You have no upcoming events."
	msgListFailed       = "Failed to retrieve events. Please try again."
	msgNothingToUpdate  = "You have no events to update. Create an event first."
	msgUpdateNotUnderst = "I had trouble understanding your update request. Please be more specific, for example: \"Update the meeting tomorrow to 4pm\" or \"Change the location of the party to my house\"."
	msgUpdateNotFound   = "I couldn't find the event to update. Please list your events first or be more specific."
	msgLowConfidence    = "I'm not entirely sure I understood correctly. Please review the details below and confirm if this is what you meant."
	msgConfirm          = "Please review the event details below and confirm to add it to your calendar."
	msgExtracted        = "I've extracted the following event details from the text:"
	msgCancelled        = "Okay, I won't add that event."
	msgInvalidDateTime  = "Invalid event date/time"
)

func renderEventList(events []domain.CalendarEvent, timezone string) string {
	var b strings.Builder
	b.WriteString("Here are your upcoming events:\n\n")
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, ev.Title, displayWhen(ev, timezone))
		if ev.Location != "" {
			fmt.Fprintf(&b, "   📍 %s\n", ev.Location)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderChoices(events []domain.CalendarEvent, timezone string) string {
	var b strings.Builder
	b.WriteString("I found multiple events. Please specify which one:\n\n")
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, ev.Title, displayWhen(ev, timezone))
	}
	b.WriteString("\nOr say \"update [event name]\" to be more specific.")
	return b.String()
}

func renderClarification(questions []string) string {
	var b strings.Builder
	b.WriteString("I need some clarification:\n\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\nPlease provide the missing information.")
	return b.String()
}

func renderAnnouncementClarification(questions []string) string {
	var b strings.Builder
	b.WriteString("However, I need clarification on:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderNothingToChange(title string) string {
	return fmt.Sprintf("I found the event \"%s\", but I'm not sure what you want to change. Please specify: title, date, time, location, or description.", title)
}

func renderUpdated(title string) string {
	return fmt.Sprintf("✅ Successfully updated event \"%s\"!", title)
}

func renderCreated(title string) string {
	return fmt.Sprintf("✅ Event \"%s\" has been successfully added to your calendar!", title)
}

// displayWhen renders an event's start for chat replies.
func displayWhen(ev domain.CalendarEvent, timezone string) string {
	if ev.Start.Date != "" {
		if d, err := timeutil.ParseDate(ev.Start.Date, timezone); err == nil {
			return d.Format(timeutil.DisplayDateLayout)
		}
		return ev.Start.Date
	}
	if t, ok := ev.StartTime(timezone); ok {
		loc, _ := timeutil.ResolveLocation(timezone)
		return t.In(loc).Format(timeutil.DisplayLayout)
	}
	return "Date TBD"
}
