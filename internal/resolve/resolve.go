// Package resolve decides which existing event an update instruction refers to and what
// should change on it.
package resolve

import (
	"context"
	"strings"
	"time"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/extract"
	"github.com/omriShneor/calbot/internal/timeutil"
)

// Kind is the outcome of a resolution.
type Kind string

const (
	KindMatched         Kind = "matched"
	KindAmbiguous       Kind = "ambiguous"
	KindNotFound        Kind = "not_found"
	KindNothingToChange Kind = "nothing_to_change"
)

// MaxChoices caps how many events an ambiguous resolution offers.
const MaxChoices = 5

// minTitleMatchLen is the shortest candidate title used for title matching; shorter
// titles ("it", "the") match far too much.
const minTitleMatchLen = 4

// Resolution is the result of Resolve.
type Resolution struct {
	Kind Kind
	// Event is set for matched and nothing_to_change.
	Event *domain.CalendarEvent
	// Patch is set for matched.
	Patch domain.EventPatch
	// Choices is set for ambiguous.
	Choices []domain.CalendarEvent
	// Candidate is what the instruction was understood as.
	Candidate *domain.EventCandidate
}

// Extractor is the extraction capability the resolver needs.
type Extractor interface {
	Extract(ctx context.Context, text string, mode extract.Mode) (*domain.EventCandidate, error)
}

// Resolver matches update instructions against a list of events.
type Resolver struct {
	extractor Extractor
	timezone  string
}

// New creates a Resolver. timezone decides calendar days and the zone of new times.
func New(extractor Extractor, timezone string) *Resolver {
	return &Resolver{extractor: extractor, timezone: timezone}
}

// Resolve interprets instruction and matches it against events. Apart from the extraction
// call the result depends only on its inputs.
func (r *Resolver) Resolve(ctx context.Context, instruction string, events []domain.CalendarEvent) (*Resolution, error) {
	if len(events) == 0 {
		return &Resolution{Kind: KindNotFound}, nil
	}

	candidate, err := r.extractor.Extract(ctx, instruction, extract.ModeCommand)
	if err != nil {
		return nil, err
	}

	res := Match(candidate, events, r.timezone)
	res.Candidate = candidate
	if res.Kind != KindMatched {
		return res, nil
	}
	if res.Event.ID == "" {
		return &Resolution{Kind: KindNotFound, Candidate: candidate}, nil
	}

	res.Patch = Diff(candidate, *res.Event, r.timezone)
	if res.Patch.IsEmpty() {
		res.Kind = KindNothingToChange
	}
	return res, nil
}

// Match applies the matching rules in order: title, calendar day, single event.
func Match(candidate *domain.EventCandidate, events []domain.CalendarEvent, timezone string) *Resolution {
	if len(events) == 0 {
		return &Resolution{Kind: KindNotFound}
	}

	day, hasDay := candidateDay(candidate, timezone)

	if byTitle := matchTitle(candidate.Title, events); len(byTitle) > 0 {
		if len(byTitle) == 1 {
			return matched(byTitle[0])
		}
		if hasDay {
			if byDay := matchDay(day, byTitle, timezone); len(byDay) == 1 {
				return matched(byDay[0])
			}
		}
		return ambiguous(byTitle)
	}

	if hasDay {
		byDay := matchDay(day, events, timezone)
		switch {
		case len(byDay) == 1:
			return matched(byDay[0])
		case len(byDay) > 1:
			return ambiguous(byDay)
		}
	}

	if len(events) == 1 {
		return matched(events[0])
	}
	return ambiguous(events)
}

// TitlesRelated reports whether one title contains the other, ignoring case.
func TitlesRelated(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func matchTitle(title string, events []domain.CalendarEvent) []domain.CalendarEvent {
	if len([]rune(strings.TrimSpace(title))) < minTitleMatchLen {
		return nil
	}
	var out []domain.CalendarEvent
	for _, ev := range events {
		if TitlesRelated(title, ev.Title) {
			out = append(out, ev)
		}
	}
	return out
}

func matchDay(day time.Time, events []domain.CalendarEvent, timezone string) []domain.CalendarEvent {
	loc, _ := timeutil.ResolveLocation(timezone)
	var out []domain.CalendarEvent
	for _, ev := range events {
		start, ok := ev.StartTime(timezone)
		if !ok {
			continue
		}
		if ev.AllDay {
			// All-day dates name a calendar day, not an instant.
			if ev.Start.Date == day.In(loc).Format(domain.DateLayout) {
				out = append(out, ev)
			}
			continue
		}
		if timeutil.SameDay(start, day, loc) {
			out = append(out, ev)
		}
	}
	return out
}

// candidateDay is the calendar day an instruction mentions, if any.
func candidateDay(c *domain.EventCandidate, timezone string) (time.Time, bool) {
	if c.StartDateTime != nil {
		if t, _, err := timeutil.ParseDateTime(*c.StartDateTime, timezone); err == nil {
			return t, true
		}
	}
	if c.Date != nil {
		if t, err := timeutil.ParseDate(*c.Date, timezone); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func matched(ev domain.CalendarEvent) *Resolution {
	return &Resolution{Kind: KindMatched, Event: &ev}
}

func ambiguous(events []domain.CalendarEvent) *Resolution {
	n := min(len(events), MaxChoices)
	choices := make([]domain.CalendarEvent, n)
	copy(choices, events[:n])
	return &Resolution{Kind: KindAmbiguous, Choices: choices}
}
