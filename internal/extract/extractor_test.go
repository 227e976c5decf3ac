package extract_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/extract"
	"github.com/omriShneor/calbot/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

func newExtractor(reply string, err error) (*extract.Extractor, *mocks.MockCompleter) {
	m := &mocks.MockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything).Return(reply, err)
	return extract.New(extract.Options{
		Completer: m,
		Timezone:  "UTC",
		Clock:     func() time.Time { return fixedNow },
	}), m
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, extract.ModeCommand, extract.ParseMode("command"))
	assert.Equal(t, extract.ModeCommand, extract.ParseMode(" Command "))
	assert.Equal(t, extract.ModeFreeform, extract.ParseMode("text"))
	assert.Equal(t, extract.ModeFreeform, extract.ParseMode(""))
}

func TestBuildPrompt(t *testing.T) {
	e, _ := newExtractor("", nil)

	command := e.BuildPrompt("lunch with Sam tomorrow at noon", extract.ModeCommand)
	assert.Contains(t, command, "Command: lunch with Sam tomorrow at noon")
	assert.Contains(t, command, "Current date context: 2025-03-05T10:00:00Z (Wednesday, time zone UTC)")

	freeform := e.BuildPrompt("Science Fair on March 12", extract.ModeFreeform)
	assert.Contains(t, freeform, "Text to analyze:\nScience Fair on March 12")
	assert.NotContains(t, freeform, "Command:")
	assert.NotContains(t, freeform, "Language:")
	assert.NotContains(t, freeform, `"newTitle"`)
	assert.Contains(t, command, `"newTitle"`)

	hebrew := e.BuildPrompt("פגישה עם דני מחר בשעה 10", extract.ModeCommand)
	assert.Contains(t, hebrew, "Language: write title, description and location in Hebrew (he)")
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		assert func(t *testing.T, c *domain.EventCandidate)
	}{
		{
			name:  "timed event",
			reply: `{"title": "Lunch with Sam", "startDateTime": "2025-03-06T12:00:00", "endDateTime": "2025-03-06T13:00:00", "date": null, "allDay": false, "confidence": 0.9, "needsClarification": false, "clarificationQuestions": []}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.Equal(t, "Lunch with Sam", c.Title)
				require.NotNil(t, c.StartDateTime)
				assert.Equal(t, "2025-03-06T12:00:00", *c.StartDateTime)
				require.NotNil(t, c.EndDateTime)
				assert.Nil(t, c.Date)
				assert.False(t, c.AllDay)
				assert.Equal(t, 0.9, c.Confidence)
				assert.False(t, c.NeedsClarification)
			},
		},
		{
			name:  "rename keeps the identifying title",
			reply: `{"title": "standup", "newTitle": "Team Retro", "startDateTime": null, "date": null, "needsClarification": false}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.Equal(t, "standup", c.Title)
				require.NotNil(t, c.NewTitle)
				assert.Equal(t, "Team Retro", *c.NewTitle)
			},
		},
		{
			name:  "null new title",
			reply: `{"title": "Lunch", "newTitle": "null", "date": "2025-03-06"}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.Nil(t, c.NewTitle)
			},
		},
		{
			name:  "fenced reply with defaults",
			reply: "```json\n{\"title\": \"Science Fair\", \"date\": \"2025-03-12\"}\n```",
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.Equal(t, "Science Fair", c.Title)
				require.NotNil(t, c.Date)
				assert.True(t, c.AllDay)
				assert.Equal(t, 0.5, c.Confidence)
				assert.False(t, c.NeedsClarification)
				assert.NotNil(t, c.ClarificationQuestions)
				assert.Empty(t, c.ClarificationQuestions)
			},
		},
		{
			name:  "start wins over date for timed events",
			reply: `{"title": "Standup", "startDateTime": "2025-03-06T09:00:00Z", "date": "2025-03-06", "allDay": false}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.NotNil(t, c.StartDateTime)
				assert.Nil(t, c.Date)
				assert.False(t, c.AllDay)
			},
		},
		{
			name:  "all-day flag with date drops times",
			reply: `{"title": "Sports Day", "startDateTime": "2025-03-06T09:00:00", "date": "2025-03-06", "allDay": true}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.Nil(t, c.StartDateTime)
				assert.Nil(t, c.EndDateTime)
				assert.Equal(t, "2025-03-06", *c.Date)
				assert.True(t, c.AllDay)
			},
		},
		{
			name:  "all-day flag without date becomes timed",
			reply: `{"title": "Offsite", "startDateTime": "2025-03-06T09:00:00", "allDay": true}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.NotNil(t, c.StartDateTime)
				assert.False(t, c.AllDay)
			},
		},
		{
			name:  "no time asks for clarification",
			reply: `{"title": "Dinner with Priya", "confidence": 0.4}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.True(t, c.NeedsClarification)
				assert.Equal(t, []string{"When does the event take place?"}, c.ClarificationQuestions)
				assert.False(t, c.AllDay)
			},
		},
		{
			name:  "model questions are kept",
			reply: `{"title": "Dinner", "needsClarification": true, "clarificationQuestions": ["What time is dinner?", " "]}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.True(t, c.NeedsClarification)
				assert.Equal(t, []string{"What time is dinner?"}, c.ClarificationQuestions)
			},
		},
		{
			name:  "clarification without questions gets a default",
			reply: `{"title": "Dinner", "date": "2025-03-07", "needsClarification": true}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.True(t, c.NeedsClarification)
				assert.Len(t, c.ClarificationQuestions, 1)
			},
		},
		{
			name:  "missing title asks for one",
			reply: `{"title": "", "startDateTime": "2025-03-06T12:00:00"}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.True(t, c.NeedsClarification)
				assert.Equal(t, []string{"What should the event be called?"}, c.ClarificationQuestions)
			},
		},
		{
			name:  "unreadable values are dropped",
			reply: `{"title": "Party", "startDateTime": "tomorrow evening", "endDateTime": "later", "date": "2025-03-08", "location": "null", "description": "  "}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.Nil(t, c.StartDateTime)
				assert.Nil(t, c.EndDateTime)
				assert.Nil(t, c.Location)
				assert.Nil(t, c.Description)
				assert.True(t, c.AllDay)
			},
		},
		{
			name:  "end before start is dropped",
			reply: `{"title": "Call", "startDateTime": "2025-03-06T12:00:00", "endDateTime": "2025-03-06T11:00:00"}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.NotNil(t, c.StartDateTime)
				assert.Nil(t, c.EndDateTime)
			},
		},
		{
			name:  "confidence is clamped",
			reply: `{"title": "Call", "startDateTime": "2025-03-06T12:00:00", "confidence": 1.7}`,
			assert: func(t *testing.T, c *domain.EventCandidate) {
				assert.Equal(t, 1.0, c.Confidence)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, m := newExtractor(tt.reply, nil)

			c, err := e.Extract(context.Background(), "some text", extract.ModeCommand)

			require.NoError(t, err)
			require.NotNil(t, c)
			tt.assert(t, c)
			m.AssertNumberOfCalls(t, "Complete", 1)
		})
	}
}

func TestExtract_CandidateInvariant(t *testing.T) {
	replies := []string{
		`{"title": "A", "startDateTime": "2025-03-06T12:00:00", "date": "2025-03-06"}`,
		`{"title": "B", "date": "2025-03-06", "allDay": false}`,
		`{"title": "C", "startDateTime": "2025-03-06T12:00:00", "allDay": true}`,
		`{"title": "D", "allDay": true}`,
		`{"title": "E"}`,
	}
	for _, reply := range replies {
		e, _ := newExtractor(reply, nil)
		c, err := e.Extract(context.Background(), "x", extract.ModeFreeform)
		require.NoError(t, err)
		if c.NeedsClarification {
			continue
		}
		timed := c.StartDateTime != nil && !c.AllDay && c.Date == nil
		allDay := c.Date != nil && c.AllDay && c.StartDateTime == nil
		assert.True(t, timed != allDay, "candidate %q violates the timed/all-day invariant", c.Title)
	}
}

func TestExtract_Errors(t *testing.T) {
	t.Run("transport failure", func(t *testing.T) {
		e, _ := newExtractor("", errors.New("connection refused"))

		_, err := e.Extract(context.Background(), "x", extract.ModeCommand)

		var extractionErr *domain.ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Equal(t, "Failed to parse command", extractionErr.Msg)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("unparseable output", func(t *testing.T) {
		e, _ := newExtractor("Sorry, I can't do that.", nil)

		_, err := e.Extract(context.Background(), "x", extract.ModeFreeform)

		var extractionErr *domain.ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Equal(t, "Failed to parse event from text", extractionErr.Msg)
	})

	t.Run("no completer", func(t *testing.T) {
		e := extract.New(extract.Options{})

		_, err := e.Extract(context.Background(), "x", extract.ModeFreeform)

		var extractionErr *domain.ExtractionError
		assert.ErrorAs(t, err, &extractionErr)
	})
}
