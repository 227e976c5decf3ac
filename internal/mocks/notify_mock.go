package mocks

import (
	"context"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of notify.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, event domain.CalendarEvent, recipient string) error {
	args := m.Called(ctx, event, recipient)
	return args.Error(0)
}

func (m *MockNotifier) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockNotifier) IsConfigured() bool {
	args := m.Called()
	return args.Bool(0)
}
