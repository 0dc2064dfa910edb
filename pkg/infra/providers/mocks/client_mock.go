package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/CityPulse/PulseGuard/pkg/infra/providers"
)

type Client struct {
	mock.Mock
}

func (m *Client) Ask(
	ctx context.Context,
	config *providers.Config,
	prompt string,
) (*providers.CompletionResponse, error) {
	args := m.Called(ctx, config, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	resp, _ := args.Get(0).(*providers.CompletionResponse)
	return resp, args.Error(1)
}
