package mocks

import (
	"context"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockCalendarProvider is a mock implementation of chat.CalendarProvider
type MockCalendarProvider struct {
	mock.Mock
}

func (m *MockCalendarProvider) Create(ctx context.Context, cred domain.Credential, ev domain.CalendarEvent) (*domain.CalendarEvent, error) {
	args := m.Called(ctx, cred, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalendarEvent), args.Error(1)
}

func (m *MockCalendarProvider) List(ctx context.Context, cred domain.Credential, maxResults int) ([]domain.CalendarEvent, error) {
	args := m.Called(ctx, cred, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalendarEvent), args.Error(1)
}

func (m *MockCalendarProvider) Update(ctx context.Context, cred domain.Credential, eventID string, patch domain.EventPatch) (*domain.CalendarEvent, error) {
	args := m.Called(ctx, cred, eventID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalendarEvent), args.Error(1)
}
