package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testEvent = domain.CalendarEvent{
	ID:       "evt001",
	Title:    "Parents <Evening>",
	Location: "School Hall",
	Start:    domain.EventTime{DateTime: "2025-03-12T18:00:00Z"},
	End:      domain.EventTime{DateTime: "2025-03-12T19:30:00Z"},
}

func TestNewService(t *testing.T) {
	configured := &mocks.MockNotifier{}
	configured.On("IsConfigured").Return(true)

	unconfigured := &mocks.MockNotifier{}
	unconfigured.On("IsConfigured").Return(false)
	unconfigured.On("Name").Return("resend")

	service := NewService(nil,
		Target{Notifier: configured, Recipient: "me@example.com"},
		Target{Notifier: unconfigured, Recipient: "me@example.com"},
		Target{Notifier: configured, Recipient: ""},
		Target{Notifier: nil, Recipient: "https://hooks.example.com"},
	)

	assert.True(t, service.Enabled())
	assert.Len(t, service.targets, 1)
	configured.AssertExpectations(t)
	unconfigured.AssertExpectations(t)
}

func TestNewService_NoTargets(t *testing.T) {
	service := NewService(nil)
	assert.False(t, service.Enabled())
	assert.NoError(t, service.EventCreated(context.Background(), testEvent))
}

func TestNewService_NilResendNotifier(t *testing.T) {
	var notifier *ResendNotifier = NewResendNotifier("", "calbot@example.com", "http://localhost:8080", "UTC")

	service := NewService(nil, Target{Notifier: notifier, Recipient: "me@example.com"})
	assert.False(t, service.Enabled())
}

func TestEventCreated(t *testing.T) {
	t.Run("sends to every target", func(t *testing.T) {
		email := &mocks.MockNotifier{}
		email.On("IsConfigured").Return(true)
		email.On("Name").Return("resend")
		email.On("Send", mock.Anything, testEvent, "me@example.com").Return(nil)

		hook := &mocks.MockNotifier{}
		hook.On("IsConfigured").Return(true)
		hook.On("Name").Return("webhook")
		hook.On("Send", mock.Anything, testEvent, "https://hooks.example.com/calbot").Return(nil)

		service := NewService(nil,
			Target{Notifier: email, Recipient: "me@example.com"},
			Target{Notifier: hook, Recipient: "https://hooks.example.com/calbot"},
		)

		require.NoError(t, service.EventCreated(context.Background(), testEvent))
		email.AssertExpectations(t)
		hook.AssertExpectations(t)
	})

	t.Run("failure does not stop other targets", func(t *testing.T) {
		email := &mocks.MockNotifier{}
		email.On("IsConfigured").Return(true)
		email.On("Name").Return("resend")
		email.On("Send", mock.Anything, testEvent, "me@example.com").Return(errors.New("quota exceeded"))

		hook := &mocks.MockNotifier{}
		hook.On("IsConfigured").Return(true)
		hook.On("Name").Return("webhook")
		hook.On("Send", mock.Anything, testEvent, "https://hooks.example.com/calbot").Return(nil)

		service := NewService(nil,
			Target{Notifier: email, Recipient: "me@example.com"},
			Target{Notifier: hook, Recipient: "https://hooks.example.com/calbot"},
		)

		err := service.EventCreated(context.Background(), testEvent)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resend: quota exceeded")
		hook.AssertCalled(t, "Send", mock.Anything, testEvent, "https://hooks.example.com/calbot")
	})
}

func TestResendNotifier_Format(t *testing.T) {
	r := NewResendNotifier("re_test_key", "calbot@example.com", "https://calbot.example.com", "America/New_York")
	require.NotNil(t, r)
	assert.True(t, r.IsConfigured())
	assert.Equal(t, "resend", r.Name())
	r.now = func() time.Time { return time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC) }

	t.Run("timed event", func(t *testing.T) {
		assert.Equal(t, "Wednesday, March 12, 2025 at 2:00 PM - 3:30 PM", r.formatWhen(testEvent))

		body := r.formatEmailHTML(testEvent)
		assert.Contains(t, body, "Parents &lt;Evening&gt;")
		assert.NotContains(t, body, "<Evening>")
		assert.Contains(t, body, "School Hall")
		assert.Contains(t, body, `href="https://calbot.example.com"`)
	})

	t.Run("all day event", func(t *testing.T) {
		ev := domain.CalendarEvent{Title: "Holiday", AllDay: true, Start: domain.EventTime{Date: "2025-12-25"}, End: domain.EventTime{Date: "2025-12-26"}}
		assert.Equal(t, "Thursday, December 25, 2025 (all day)", r.formatWhen(ev))
	})

	t.Run("multi day event", func(t *testing.T) {
		ev := domain.CalendarEvent{
			Title: "Offsite",
			Start: domain.EventTime{DateTime: "2025-03-12T14:00:00Z"},
			End:   domain.EventTime{DateTime: "2025-03-13T14:00:00Z"},
		}
		assert.Equal(t, "Wednesday, March 12, 2025 at 10:00 AM - Thursday, March 13, 2025 at 10:00 AM", r.formatWhen(ev))
	})

	t.Run("requires recipient", func(t *testing.T) {
		assert.Error(t, r.Send(context.Background(), testEvent, ""))
	})
}

func TestWebhookNotifier(t *testing.T) {
	var received webhookPayload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/broken") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier()
	assert.True(t, n.IsConfigured())
	assert.Equal(t, "webhook", n.Name())

	require.NoError(t, n.Send(context.Background(), testEvent, srv.URL+"/hook"))
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "event.created", received.Type)
	assert.Equal(t, testEvent, received.Event)

	err := n.Send(context.Background(), testEvent, srv.URL+"/broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	assert.Error(t, n.Send(context.Background(), testEvent, ""))
}
