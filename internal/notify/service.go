package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omriShneor/calbot/internal/domain"
)

// Target pairs a notifier with the recipient it should deliver to.
type Target struct {
	Notifier  Notifier
	Recipient string
}

// Service fans out event-created notices to the configured targets.
type Service struct {
	targets []Target
	logger  *slog.Logger
}

// NewService creates a notification service. Targets without a recipient or with an
// unconfigured notifier are skipped.
func NewService(logger *slog.Logger, targets ...Target) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger}
	for _, t := range targets {
		if t.Notifier == nil || t.Recipient == "" {
			continue
		}
		if !t.Notifier.IsConfigured() {
			logger.Warn("notifier not configured, skipping", "notifier", t.Notifier.Name())
			continue
		}
		s.targets = append(s.targets, t)
	}
	return s
}

// EventCreated notifies every target about ev. Each target is tried; the returned error
// joins the failures.
func (s *Service) EventCreated(ctx context.Context, ev domain.CalendarEvent) error {
	var errs []error
	for _, t := range s.targets {
		if err := t.Notifier.Send(ctx, ev, t.Recipient); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Notifier.Name(), err))
			continue
		}
		s.logger.Info("notification sent", "notifier", t.Notifier.Name(), "event_id", ev.ID)
	}
	return errors.Join(errs...)
}

// Enabled reports whether any target is active.
func (s *Service) Enabled() bool {
	return len(s.targets) > 0
}
