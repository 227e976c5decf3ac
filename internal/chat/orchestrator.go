package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/extract"
	"github.com/omriShneor/calbot/internal/resolve"
	"github.com/omriShneor/calbot/internal/sse"
	"github.com/omriShneor/calbot/internal/timeutil"
)

// DefaultConfidenceThreshold is the confidence below which a candidate is presented with a
// "not sure" notice.
const DefaultConfidenceThreshold = 0.7

const (
	defaultListSize       = 10
	defaultUpdateListSize = 20
)

// CalendarProvider is the calendar capability the orchestrator drives.
type CalendarProvider interface {
	Create(ctx context.Context, cred domain.Credential, ev domain.CalendarEvent) (*domain.CalendarEvent, error)
	List(ctx context.Context, cred domain.Credential, maxResults int) ([]domain.CalendarEvent, error)
	Update(ctx context.Context, cred domain.Credential, eventID string, patch domain.EventPatch) (*domain.CalendarEvent, error)
}

// Extractor turns text into an event candidate.
type Extractor interface {
	Extract(ctx context.Context, text string, mode extract.Mode) (*domain.EventCandidate, error)
}

// Resolver matches update instructions against events.
type Resolver interface {
	Resolve(ctx context.Context, instruction string, events []domain.CalendarEvent) (*resolve.Resolution, error)
}

// Notifier is told about events created through the chat.
type Notifier interface {
	EventCreated(ctx context.Context, ev domain.CalendarEvent) error
}

// Publisher receives session updates for live streams.
type Publisher interface {
	Publish(sessionID string, update sse.Update)
}

// Options configures an Orchestrator.
type Options struct {
	Extractor Extractor
	Provider  CalendarProvider
	Resolver  Resolver
	// Optional collaborators.
	Notifier  Notifier
	Publisher Publisher
	Store     Store

	ConfidenceThreshold float64
	Timezone            string
	ListSize            int
	UpdateListSize      int
	Clock               func() time.Time
	Logger              *slog.Logger
}

// Orchestrator runs conversational turns against a session.
type Orchestrator struct {
	extractor      Extractor
	provider       CalendarProvider
	resolver       Resolver
	notifier       Notifier
	publisher      Publisher
	store          Store
	threshold      float64
	timezone       string
	listSize       int
	updateListSize int
	now            func() time.Time
	newID          func() string
	logger         *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if opts.ListSize <= 0 {
		opts.ListSize = defaultListSize
	}
	if opts.UpdateListSize <= 0 {
		opts.UpdateListSize = defaultUpdateListSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Resolver == nil && opts.Extractor != nil {
		opts.Resolver = resolve.New(opts.Extractor, opts.Timezone)
	}
	return &Orchestrator{
		extractor:      opts.Extractor,
		provider:       opts.Provider,
		resolver:       opts.Resolver,
		notifier:       opts.Notifier,
		publisher:      opts.Publisher,
		store:          opts.Store,
		threshold:      opts.ConfidenceThreshold,
		timezone:       opts.Timezone,
		listSize:       opts.ListSize,
		updateListSize: opts.UpdateListSize,
		now:            opts.Clock,
		newID:          uuid.NewString,
		logger:         opts.Logger,
	}
}

// Threshold returns the configured confidence threshold.
func (o *Orchestrator) Threshold() float64 {
	return o.threshold
}

// HandleMessage runs one user chat message through intent classification and the matching
// flow. Failures are rendered as assistant turns; only ErrBusy and validation errors are
// returned.
func (o *Orchestrator) HandleMessage(ctx context.Context, s *Session, cred domain.Credential, text string) (View, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return View{}, domain.NewValidationError("Text is required")
	}
	if cred.IsZero() {
		if s.State() == StateProcessing {
			return View{}, ErrBusy
		}
		o.say(s, msgLoginRequired, nil)
		o.save(ctx, s)
		return s.View(), nil
	}

	if err := o.start(s, StateIdle, StateAwaitingConfirmation); err != nil {
		return View{}, err
	}
	// A new message supersedes whatever was awaiting confirmation.
	s.takePending()
	o.add(s, RoleUser, text, nil)

	next := StateIdle
	intent := ClassifyIntent(text)
	o.logger.Debug("handling chat message", "session_id", s.ID, "intent", intent)
	switch intent {
	case IntentList:
		o.listEvents(ctx, s, cred)
	case IntentUpdate:
		o.updateEvent(ctx, s, cred, text)
	default:
		next = o.proposeEvent(ctx, s, text)
	}

	o.end(ctx, s, next)
	return s.View(), nil
}

// ExtractAnnouncement extracts an event from pasted free text (a school notice, an office
// memo) and, unless clarification is needed, leaves it awaiting confirmation.
func (o *Orchestrator) ExtractAnnouncement(ctx context.Context, s *Session, text string) (View, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return View{}, domain.NewValidationError("Text is required")
	}
	if err := o.start(s, StateIdle, StateAwaitingConfirmation); err != nil {
		return View{}, err
	}
	s.takePending()
	o.add(s, RoleUser, "Extract event from: "+text, nil)

	next := StateIdle
	candidate, err := o.extractor.Extract(ctx, text, extract.ModeFreeform)
	switch {
	case err != nil:
		o.say(s, fmt.Sprintf("Failed to extract event: %s. Please try again.", errorText(err)), nil)
	case candidate.NeedsClarification:
		o.say(s, msgExtracted, candidate)
		o.say(s, renderAnnouncementClarification(candidate.ClarificationQuestions), nil)
	default:
		o.say(s, msgExtracted, candidate)
		s.setPending(candidate)
		next = StateAwaitingConfirmation
	}

	o.end(ctx, s, next)
	return s.View(), nil
}

// Edits are field overrides applied to the pending candidate before it is created.
type Edits struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	Location      *string `json:"location,omitempty"`
	StartDateTime *string `json:"startDateTime,omitempty"`
	EndDateTime   *string `json:"endDateTime,omitempty"`
	Date          *string `json:"date,omitempty"`
	AllDay        *bool   `json:"allDay,omitempty"`
}

// apply overrides fields of c. A blank description or location clears the field. Time edits
// leave c either timed (startDateTime, no date) or all-day (date, no times): a new start
// makes the event timed, allDay=true keeps only the date, and a new date on a timed event
// moves it to that day.
func (e *Edits) apply(c *domain.EventCandidate) error {
	if e == nil {
		return nil
	}
	if e.Title != nil {
		title := strings.TrimSpace(*e.Title)
		if title == "" {
			return domain.NewValidationError("the event needs a title")
		}
		c.Title = title
	}
	if e.Description != nil {
		c.Description = domain.StringPtr(*e.Description)
	}
	if e.Location != nil {
		c.Location = domain.StringPtr(*e.Location)
	}
	if e.StartDateTime == nil && e.EndDateTime == nil && e.Date == nil && e.AllDay == nil {
		return nil
	}

	newStart := e.StartDateTime != nil && domain.StringPtr(*e.StartDateTime) != nil
	allDay := c.AllDay
	switch {
	case e.AllDay != nil:
		allDay = *e.AllDay
	case newStart:
		allDay = false
	}

	oldDay := datePart(c.StartDateTime)
	if e.StartDateTime != nil {
		c.StartDateTime = domain.StringPtr(*e.StartDateTime)
	}
	if e.EndDateTime != nil {
		c.EndDateTime = domain.StringPtr(*e.EndDateTime)
	}
	if e.Date != nil {
		c.Date = domain.StringPtr(*e.Date)
		if !allDay && !newStart && c.Date != nil && c.StartDateTime != nil {
			c.StartDateTime = moveToDay(*c.StartDateTime, *c.Date)
			if c.EndDateTime != nil && datePart(c.EndDateTime) == oldDay {
				c.EndDateTime = moveToDay(*c.EndDateTime, *c.Date)
			} else {
				c.EndDateTime = nil
			}
		}
	}

	if allDay {
		if c.Date == nil && c.StartDateTime != nil {
			c.Date = domain.StringPtr(datePart(c.StartDateTime))
		}
		if c.Date == nil {
			return domain.NewValidationError("an all-day event needs a date")
		}
		c.StartDateTime, c.EndDateTime = nil, nil
	} else {
		if c.StartDateTime == nil {
			return domain.NewValidationError("a timed event needs a start time")
		}
		c.Date = nil
	}
	c.AllDay = allDay
	return nil
}

// datePart returns the YYYY-MM-DD prefix of an ISO 8601 date-time, or "".
func datePart(dt *string) string {
	if dt == nil || len(*dt) < len(domain.DateLayout) {
		return ""
	}
	day := (*dt)[:len(domain.DateLayout)]
	if _, err := time.Parse(domain.DateLayout, day); err != nil {
		return ""
	}
	return day
}

func moveToDay(dt, day string) *string {
	if datePart(&dt) == "" {
		return &dt
	}
	moved := day + dt[len(domain.DateLayout):]
	return &moved
}

// Confirm creates the pending candidate, with optional edits, in the calendar. Edits that
// cannot be applied leave the candidate pending unchanged; otherwise the session ends idle.
func (o *Orchestrator) Confirm(ctx context.Context, s *Session, cred domain.Credential, edits *Edits) (View, error) {
	if cred.IsZero() {
		if s.State() == StateProcessing {
			return View{}, ErrBusy
		}
		o.say(s, msgLoginRequired, nil)
		o.save(ctx, s)
		return s.View(), nil
	}
	if err := o.start(s, StateAwaitingConfirmation); err != nil {
		return View{}, err
	}

	pending := s.takePending()
	if pending == nil {
		o.end(ctx, s, StateIdle)
		return View{}, ErrNoPendingEvent
	}
	candidate := *pending
	if err := edits.apply(&candidate); err != nil {
		s.setPending(pending)
		o.say(s, fmt.Sprintf("I couldn't apply those changes: %s.", errorText(err)), pending)
		o.end(ctx, s, StateAwaitingConfirmation)
		return s.View(), nil
	}

	ev, err := CandidateToEvent(&candidate, o.timezone)
	if err != nil {
		o.say(s, fmt.Sprintf("Failed to create event: %s. Please try again.", errorText(err)), nil)
		o.end(ctx, s, StateIdle)
		return s.View(), nil
	}

	created, err := o.provider.Create(ctx, cred, ev)
	if err != nil {
		o.logger.Error("failed to create event", "session_id", s.ID, "error", err)
		if domain.IsAuthError(err) {
			o.say(s, msgSessionExpired, nil)
		} else {
			o.say(s, fmt.Sprintf("Failed to create event: %s. Please try again.", errorText(err)), nil)
		}
		o.end(ctx, s, StateIdle)
		return s.View(), nil
	}

	o.say(s, renderCreated(created.Title), nil)
	o.refreshCache(ctx, s, cred)
	o.notifyCreated(ctx, *created)

	o.end(ctx, s, StateIdle)
	return s.View(), nil
}

// Cancel drops the pending candidate.
func (o *Orchestrator) Cancel(ctx context.Context, s *Session) (View, error) {
	if err := o.start(s, StateAwaitingConfirmation); err != nil {
		return View{}, err
	}
	s.takePending()
	o.say(s, msgCancelled, nil)
	o.end(ctx, s, StateIdle)
	return s.View(), nil
}

// RefreshEvents reloads the session's cached list of upcoming events.
func (o *Orchestrator) RefreshEvents(ctx context.Context, s *Session, cred domain.Credential) ([]domain.CalendarEvent, error) {
	events, err := o.provider.List(ctx, cred, o.listSize)
	if err != nil {
		return nil, err
	}
	s.setEvents(events)
	return events, nil
}

// Greet appends an assistant turn outside of any flow (login results, logout).
func (o *Orchestrator) Greet(ctx context.Context, s *Session, text string) View {
	o.say(s, text, nil)
	o.save(ctx, s)
	return s.View()
}

func (o *Orchestrator) listEvents(ctx context.Context, s *Session, cred domain.Credential) {
	events, err := o.provider.List(ctx, cred, o.listSize)
	if err != nil {
		o.logger.Error("failed to list events", "session_id", s.ID, "error", err)
		if domain.IsAuthError(err) {
			o.say(s, msgSessionExpired, nil)
		} else {
			o.say(s, msgListFailed, nil)
		}
		return
	}
	s.setEvents(events)

	if len(events) == 0 {
		o.say(s, msgNoUpcoming, nil)
		return
	}
	o.say(s, renderEventList(events, o.timezone), nil)
}

func (o *Orchestrator) updateEvent(ctx context.Context, s *Session, cred domain.Credential, text string) {
	events, err := o.provider.List(ctx, cred, o.updateListSize)
	if err != nil {
		o.logger.Error("failed to list events for update", "session_id", s.ID, "error", err)
		if domain.IsAuthError(err) {
			o.say(s, msgSessionExpired, nil)
		} else {
			o.say(s, msgListFailed, nil)
		}
		return
	}
	if len(events) == 0 {
		o.say(s, msgNothingToUpdate, nil)
		return
	}

	res, err := o.resolver.Resolve(ctx, text, events)
	if err != nil {
		var extractionErr *domain.ExtractionError
		if errors.As(err, &extractionErr) {
			o.say(s, msgUpdateNotUnderst, nil)
			return
		}
		o.say(s, fmt.Sprintf("Sorry, I encountered an error while updating: %s. Please try again with a more specific command.", errorText(err)), nil)
		return
	}

	switch res.Kind {
	case resolve.KindAmbiguous:
		o.say(s, renderChoices(res.Choices, o.timezone), nil)
	case resolve.KindNotFound:
		o.say(s, msgUpdateNotFound, nil)
	case resolve.KindNothingToChange:
		o.say(s, renderNothingToChange(res.Event.Title), nil)
	case resolve.KindMatched:
		updated, err := o.provider.Update(ctx, cred, res.Event.ID, res.Patch)
		if err != nil {
			o.logger.Error("failed to update event", "session_id", s.ID, "event_id", res.Event.ID, "error", err)
			if domain.IsAuthError(err) {
				o.say(s, msgSessionExpired, nil)
			} else {
				o.say(s, fmt.Sprintf("Failed to update event: %s. Please try again.", errorText(err)), nil)
			}
			return
		}
		o.say(s, renderUpdated(updated.Title), nil)
		o.refreshCache(ctx, s, cred)
	}
}

// proposeEvent extracts a candidate from a create request. It never creates anything; the
// returned state tells whether a candidate now awaits confirmation.
func (o *Orchestrator) proposeEvent(ctx context.Context, s *Session, text string) State {
	candidate, err := o.extractor.Extract(ctx, text, extract.ModeCommand)
	if err != nil {
		o.logger.Warn("failed to extract event", "session_id", s.ID, "error", err)
		o.say(s, fmt.Sprintf("Sorry, I encountered an error: %s. Please try again.", errorText(err)), nil)
		return StateIdle
	}

	if candidate.NeedsClarification {
		o.say(s, renderClarification(candidate.ClarificationQuestions), candidate)
		return StateIdle
	}

	s.setPending(candidate)
	if candidate.Confidence < o.threshold {
		o.say(s, msgLowConfidence, candidate)
	} else {
		o.say(s, msgConfirm, candidate)
	}
	return StateAwaitingConfirmation
}

// CandidateToEvent converts a confirmed candidate into a calendar event. All-day ends are
// exclusive; timed events without an end last one hour.
func CandidateToEvent(c *domain.EventCandidate, timezone string) (domain.CalendarEvent, error) {
	ev := domain.CalendarEvent{
		Title:       c.Title,
		Description: domain.Deref(c.Description),
		Location:    domain.Deref(c.Location),
	}
	zone := timezone
	if zone == "" {
		zone = "UTC"
	}

	switch {
	case c.AllDay && c.Date != nil:
		next, err := timeutil.NextDay(*c.Date)
		if err != nil {
			return ev, domain.NewValidationError(msgInvalidDateTime)
		}
		ev.AllDay = true
		ev.Start = domain.EventTime{Date: *c.Date}
		ev.End = domain.EventTime{Date: next}
	case c.StartDateTime != nil:
		start, _, err := timeutil.ParseDateTime(*c.StartDateTime, zone)
		if err != nil {
			return ev, domain.NewValidationError(msgInvalidDateTime)
		}
		end := start.Add(domain.DefaultDuration)
		if c.EndDateTime != nil {
			if t, _, err := timeutil.ParseDateTime(*c.EndDateTime, zone); err == nil && t.After(start) {
				end = t
			}
		}
		ev.Start = domain.EventTime{DateTime: start.Format(time.RFC3339), TimeZone: zone}
		ev.End = domain.EventTime{DateTime: end.Format(time.RFC3339), TimeZone: zone}
	case c.Date != nil:
		next, err := timeutil.NextDay(*c.Date)
		if err != nil {
			return ev, domain.NewValidationError(msgInvalidDateTime)
		}
		ev.AllDay = true
		ev.Start = domain.EventTime{Date: *c.Date}
		ev.End = domain.EventTime{Date: next}
	default:
		return ev, domain.NewValidationError(msgInvalidDateTime)
	}
	return ev, nil
}

func (o *Orchestrator) refreshCache(ctx context.Context, s *Session, cred domain.Credential) {
	if _, err := o.RefreshEvents(ctx, s, cred); err != nil {
		o.logger.Warn("failed to refresh cached events", "session_id", s.ID, "error", err)
	}
}

func (o *Orchestrator) notifyCreated(ctx context.Context, ev domain.CalendarEvent) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.EventCreated(ctx, ev); err != nil {
		o.logger.Warn("failed to send event notification", "event_id", ev.ID, "error", err)
	}
}

func (o *Orchestrator) start(s *Session, allowed ...State) error {
	if err := s.begin(allowed...); err != nil {
		return err
	}
	o.publish(s.ID, sse.Update{Type: "state", Data: string(StateProcessing)})
	return nil
}

func (o *Orchestrator) end(ctx context.Context, s *Session, next State) {
	s.finish(next)
	o.publish(s.ID, sse.Update{Type: "state", Data: string(next)})
	o.save(ctx, s)
}

func (o *Orchestrator) say(s *Session, text string, candidate *domain.EventCandidate) {
	o.add(s, RoleAssistant, text, candidate)
}

func (o *Orchestrator) add(s *Session, role Role, text string, candidate *domain.EventCandidate) {
	msg := Message{
		ID:        o.newID(),
		Role:      role,
		Text:      text,
		Timestamp: o.now(),
	}
	if candidate != nil {
		cp := *candidate
		msg.Event = &cp
	}
	s.append(msg)

	if o.publisher != nil {
		data, err := json.Marshal(msg)
		if err == nil {
			o.publisher.Publish(s.ID, sse.Update{Type: "message", Data: string(data)})
		}
	}
}

func (o *Orchestrator) publish(sessionID string, update sse.Update) {
	if o.publisher != nil {
		o.publisher.Publish(sessionID, update)
	}
}

func (o *Orchestrator) save(ctx context.Context, s *Session) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveSession(ctx, s.View()); err != nil {
		o.logger.Warn("failed to persist chat session", "session_id", s.ID, "error", err)
	}
}

// errorText is the user-facing message of err.
func errorText(err error) string {
	var extractionErr *domain.ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr.Msg
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Msg
	}
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Err.Error()
	}
	return err.Error()
}
