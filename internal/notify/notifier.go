package notify

import (
	"context"

	"github.com/omriShneor/calbot/internal/domain"
)

// Notifier delivers a notice about a created event to one recipient
type Notifier interface {
	// Send delivers the notice. The meaning of recipient depends on the channel.
	Send(ctx context.Context, event domain.CalendarEvent, recipient string) error
	// Name returns the notifier type name (for logging)
	Name() string
	// IsConfigured returns true if the notifier has server-side config
	IsConfigured() bool
}
