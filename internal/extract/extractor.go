package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omriShneor/calbot/internal/claude"
	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/timeutil"
)

// Mode selects which prompt the extractor uses.
type Mode string

const (
	// ModeFreeform handles pasted announcements.
	ModeFreeform Mode = "freeform"
	// ModeCommand handles chat commands.
	ModeCommand Mode = "command"
)

// ParseMode maps the wire value of a parse request to a Mode.
// "command" selects command mode; anything else ("text", "") is freeform.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "command") {
		return ModeCommand
	}
	return ModeFreeform
}

const (
	questionWhen  = "When does the event take place?"
	questionTitle = "What should the event be called?"
)

// Extractor turns text into an EventCandidate with one model call.
type Extractor struct {
	completer claude.Completer
	timezone  string
	now       func() time.Time
	logger    *slog.Logger
}

// Options configures an Extractor.
type Options struct {
	Completer claude.Completer
	// Timezone is used to render the current date context and to read offset-less times.
	Timezone string
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{
		completer: opts.Completer,
		timezone:  opts.Timezone,
		now:       opts.Clock,
		logger:    opts.Logger,
	}
}

// rawCandidate mirrors the model's JSON with every field optional so defaults can be told
// apart from explicit values.
type rawCandidate struct {
	Title                  *string  `json:"title"`
	NewTitle               *string  `json:"newTitle"`
	Description            *string  `json:"description"`
	Location               *string  `json:"location"`
	StartDateTime          *string  `json:"startDateTime"`
	EndDateTime            *string  `json:"endDateTime"`
	Date                   *string  `json:"date"`
	AllDay                 *bool    `json:"allDay"`
	Confidence             *float64 `json:"confidence"`
	NeedsClarification     *bool    `json:"needsClarification"`
	ClarificationQuestions []string `json:"clarificationQuestions"`
}

// Extract runs a single extraction. Transport failures and unusable output are returned
// as *domain.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, text string, mode Mode) (*domain.EventCandidate, error) {
	failMsg := "Failed to parse event from text"
	if mode == ModeCommand {
		failMsg = "Failed to parse command"
	}

	if e.completer == nil {
		return nil, &domain.ExtractionError{Msg: failMsg, Err: fmt.Errorf("language model is not configured")}
	}

	prompt := e.BuildPrompt(text, mode)
	reply, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		e.logger.Error("model call failed", "mode", mode, "error", err)
		return nil, &domain.ExtractionError{Msg: failMsg, Err: err}
	}

	var raw rawCandidate
	if err := json.Unmarshal([]byte(claude.ExtractJSON(reply)), &raw); err != nil {
		e.logger.Warn("model reply is not valid JSON", "mode", mode, "error", err)
		return nil, &domain.ExtractionError{Msg: failMsg, Err: fmt.Errorf("invalid model output: %w", err)}
	}

	candidate := e.normalize(raw)
	e.logger.Debug("extracted event candidate",
		"mode", mode,
		"title", candidate.Title,
		"all_day", candidate.AllDay,
		"confidence", candidate.Confidence,
		"needs_clarification", candidate.NeedsClarification,
	)
	return candidate, nil
}

// BuildPrompt renders the mode's prompt with the current date context, a language hint for
// non-English text and the user text.
func (e *Extractor) BuildPrompt(text string, mode Mode) string {
	loc, _ := timeutil.ResolveLocation(e.timezone)
	now := e.now().In(loc)
	dateContext := fmt.Sprintf("%s (%s, time zone %s)", now.Format(time.RFC3339), now.Weekday(), loc.String())

	tmpl := freeformPrompt
	if mode == ModeCommand {
		tmpl = commandPrompt
	}
	return fmt.Sprintf(tmpl, dateContext, languageInstruction(text), text)
}

// normalize applies defaults and guarantees that a candidate not flagged for clarification
// is either timed (startDateTime, allDay=false) or all-day (date, allDay=true).
func (e *Extractor) normalize(raw rawCandidate) *domain.EventCandidate {
	c := &domain.EventCandidate{
		Title:                  strings.TrimSpace(domain.Deref(raw.Title)),
		NewTitle:               cleanString(raw.NewTitle),
		Description:            cleanString(raw.Description),
		Location:               cleanString(raw.Location),
		StartDateTime:          cleanString(raw.StartDateTime),
		EndDateTime:            cleanString(raw.EndDateTime),
		Date:                   cleanString(raw.Date),
		Confidence:             0.5,
		ClarificationQuestions: []string{},
	}
	if raw.AllDay != nil {
		c.AllDay = *raw.AllDay
	}
	if raw.Confidence != nil {
		c.Confidence = min(max(*raw.Confidence, 0), 1)
	}
	if raw.NeedsClarification != nil {
		c.NeedsClarification = *raw.NeedsClarification
	}
	for _, q := range raw.ClarificationQuestions {
		if q = strings.TrimSpace(q); q != "" {
			c.ClarificationQuestions = append(c.ClarificationQuestions, q)
		}
	}

	// Unreadable values are treated as absent.
	var start time.Time
	if c.StartDateTime != nil {
		t, _, err := timeutil.ParseDateTime(*c.StartDateTime, e.timezone)
		if err != nil {
			c.StartDateTime = nil
		} else {
			start = t
		}
	}
	if c.EndDateTime != nil {
		end, _, err := timeutil.ParseDateTime(*c.EndDateTime, e.timezone)
		if err != nil || c.StartDateTime == nil || !end.After(start) {
			c.EndDateTime = nil
		}
	}
	if c.Date != nil {
		if _, err := timeutil.ParseDate(*c.Date, e.timezone); err != nil {
			c.Date = nil
		}
	}

	switch {
	case c.AllDay && c.Date != nil:
		c.StartDateTime, c.EndDateTime = nil, nil
	case c.StartDateTime != nil:
		c.AllDay = false
		c.Date = nil
	case c.Date != nil:
		c.AllDay = true
	default:
		c.AllDay = false
		if !c.NeedsClarification {
			c.NeedsClarification = true
			c.ClarificationQuestions = appendQuestion(c.ClarificationQuestions, questionWhen)
		}
	}

	if c.Title == "" && !c.NeedsClarification {
		c.NeedsClarification = true
		c.ClarificationQuestions = appendQuestion(c.ClarificationQuestions, questionTitle)
	}

	if c.NeedsClarification && len(c.ClarificationQuestions) == 0 {
		c.ClarificationQuestions = []string{questionWhen}
	}
	return c
}

// cleanString drops blank values and the literal "null" some models emit.
func cleanString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

func appendQuestion(questions []string, q string) []string {
	for _, existing := range questions {
		if existing == q {
			return questions
		}
	}
	return append(questions, q)
}
