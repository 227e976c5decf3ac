package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/timeutil"
	"github.com/resend/resend-go/v2"
)

// ResendNotifier sends email notifications via Resend API
type ResendNotifier struct {
	client      *resend.Client
	fromAddress string
	appURL      string
	timezone    string
	now         func() time.Time
}

// NewResendNotifier creates a Resend email notifier. It returns nil without an API key.
func NewResendNotifier(apiKey, from, appURL, timezone string) *ResendNotifier {
	if apiKey == "" {
		return nil
	}
	return &ResendNotifier{
		client:      resend.NewClient(apiKey),
		fromAddress: from,
		appURL:      appURL,
		timezone:    timezone,
		now:         time.Now,
	}
}

// IsConfigured returns true if the notifier has server-side config
func (r *ResendNotifier) IsConfigured() bool {
	return r != nil && r.client != nil && r.fromAddress != ""
}

// Send emails recipient about an event that was added to the calendar
func (r *ResendNotifier) Send(ctx context.Context, event domain.CalendarEvent, recipient string) error {
	if recipient == "" {
		return fmt.Errorf("no recipient specified")
	}

	params := &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{recipient},
		Subject: fmt.Sprintf("Added to your calendar: %s", event.Title),
		Html:    r.formatEmailHTML(event),
	}

	if _, err := r.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	return nil
}

// Name returns the notifier name
func (r *ResendNotifier) Name() string {
	return "resend"
}

// formatWhen renders the event's time range for the email body.
func (r *ResendNotifier) formatWhen(event domain.CalendarEvent) string {
	if event.AllDay {
		d, err := timeutil.ParseDate(event.Start.Date, r.timezone)
		if err != nil {
			return event.Start.Date
		}
		return d.Format("Monday, January 2, 2006") + " (all day)"
	}

	start, ok := event.StartTime(r.timezone)
	if !ok {
		return "Date TBD"
	}
	loc, _ := timeutil.ResolveLocation(r.timezone)
	start = start.In(loc)
	when := start.Format("Monday, January 2, 2006 at 3:04 PM")

	end, ok := event.End.Time(r.timezone)
	if !ok {
		return when
	}
	end = end.In(loc)
	if timeutil.SameDay(start, end, loc) {
		return when + " - " + end.Format("3:04 PM")
	}
	return when + " - " + end.Format("Monday, January 2, 2006 at 3:04 PM")
}

// formatEmailHTML creates the HTML email body
func (r *ResendNotifier) formatEmailHTML(event domain.CalendarEvent) string {
	locationHTML := ""
	if event.Location != "" {
		locationHTML = fmt.Sprintf(`<p style="margin: 8px 0;"><strong>Location:</strong> %s</p>`, html.EscapeString(event.Location))
	}

	descriptionHTML := ""
	if event.Description != "" {
		descriptionHTML = fmt.Sprintf(`<p style="margin: 16px 0;">%s</p>`, html.EscapeString(event.Description))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f5f5f5;">
  <div style="background-color: white; border-radius: 8px; padding: 24px; box-shadow: 0 2px 4px rgba(0,0,0,0.1);">
    <div style="margin-bottom: 16px;">
      <span style="background-color: #28a745; color: white; padding: 4px 12px; border-radius: 4px; font-size: 12px; font-weight: 600;">Event Added</span>
    </div>

    <h2 style="margin: 0 0 16px 0; color: #333;">%s</h2>

    <div style="background: #f8f9fa; padding: 16px; border-radius: 8px; margin: 16px 0; border-left: 4px solid #007bff;">
      <p style="margin: 8px 0;"><strong>When:</strong> %s</p>
      %s
    </div>

    %s

    <a href="%s" style="display: inline-block; background: #007bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin-top: 16px; font-weight: 500;">
      Open Calbot
    </a>

    <hr style="margin-top: 32px; border: none; border-top: 1px solid #eee;">
    <p style="color: #999; font-size: 12px; margin-top: 16px;">
      Calbot - Conversational Calendar Assistant<br>
      <span style="color: #ccc;">Sent at %s</span>
    </p>
  </div>
</body>
</html>`,
		html.EscapeString(event.Title),
		html.EscapeString(r.formatWhen(event)),
		locationHTML,
		descriptionHTML,
		html.EscapeString(r.appURL),
		r.now().Format("Jan 2, 2006 3:04 PM"),
	)
}
