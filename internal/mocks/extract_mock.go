package mocks

import (
	"context"

	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/extract"
	"github.com/stretchr/testify/mock"
)

// MockExtractor is a mock implementation of chat.Extractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, text string, mode extract.Mode) (*domain.EventCandidate, error) {
	args := m.Called(ctx, text, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EventCandidate), args.Error(1)
}
