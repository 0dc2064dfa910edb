package factory

import (
	"fmt"

	"github.com/CityPulse/PulseGuard/pkg/infra/providers"
	"github.com/CityPulse/PulseGuard/pkg/infra/providers/anthropic"
	"github.com/CityPulse/PulseGuard/pkg/infra/providers/gemini"
	"github.com/CityPulse/PulseGuard/pkg/infra/providers/openai"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

//go:generate mockery --name=ProviderLocator --dir=. --output=./mocks --filename=provider_locator_mock.go --case=underscore --with-expecter

type ProviderLocator interface {
	Get(provider string) (providers.Client, error)
}

type providerLocator struct{}

func NewProviderLocator() ProviderLocator {
	return &providerLocator{}
}

func (f *providerLocator) Get(provider string) (providers.Client, error) {
	switch provider {
	case ProviderOpenAI:
		return openai.NewOpenaiClient(), nil
	case ProviderAnthropic:
		return anthropic.NewAnthropicClient(), nil
	case ProviderGemini:
		return gemini.NewGeminiClient(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
