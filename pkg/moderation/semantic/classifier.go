package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"

	"github.com/CityPulse/PulseGuard/pkg/infra/providers"
	"github.com/CityPulse/PulseGuard/pkg/moderation"
)

const (
	StageName = "semantic"

	defaultMaxTokens = 256
)

type Config struct {
	Model     string
	APIKey    string
	MaxTokens int
}

// Classifier is the authoritative moderation stage: a single LLM call
// with a policy-encoded system prompt, returning a structured verdict.
// A malformed reply is treated exactly like a network failure.
type Classifier struct {
	provider providers.Client
	logger   *logrus.Logger
	cfg      Config
}

func NewClassifier(cfg Config, provider providers.Client, logger *logrus.Logger) *Classifier {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Classifier{
		provider: provider,
		logger:   logger,
		cfg:      cfg,
	}
}

func (c *Classifier) Name() string {
	return StageName
}

func (c *Classifier) Blocking() bool {
	return true
}

func (c *Classifier) Evaluate(ctx context.Context, content string) moderation.Outcome {
	resp, err := c.provider.Ask(ctx, &providers.Config{
		Credentials:  providers.Credentials{ApiKey: c.cfg.APIKey},
		Model:        c.cfg.Model,
		MaxTokens:    c.cfg.MaxTokens,
		SystemPrompt: SystemPrompt,
	}, content)
	if err != nil {
		return moderation.Outcome{Err: fmt.Errorf("semantic moderation request: %w", err)}
	}
	if resp == nil {
		return moderation.Outcome{Err: fmt.Errorf("semantic moderation: nil provider response")}
	}

	cls, err := parseClassification(resp.Response)
	if err != nil {
		c.logger.WithError(err).WithField("response", resp.Response).
			Warn("failed to parse classifier response")
		return moderation.Outcome{Err: err}
	}

	out := moderation.Outcome{Classification: cls}
	if cls.Decision == moderation.DecisionBlock {
		out.Blocked = true
		out.Reason = moderation.UserMessageForCategory(cls.Category)
	}
	return out
}

// parseClassification is deliberately defensive: models occasionally
// wrap the JSON in markdown fences or emit invalid bodies.
func parseClassification(raw string) (*moderation.Classification, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if err := fastjson.Validate(raw); err != nil {
		return nil, fmt.Errorf("malformed classifier response: %w", err)
	}

	var cls moderation.Classification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		return nil, fmt.Errorf("failed to unmarshal classifier response: %w", err)
	}

	switch cls.Decision {
	case moderation.DecisionAllow, moderation.DecisionBlock:
	default:
		return nil, fmt.Errorf("unexpected decision %q in classifier response", cls.Decision)
	}

	if cls.Confidence < 0 {
		cls.Confidence = 0
	}
	if cls.Confidence > 1 {
		cls.Confidence = 1
	}

	return &cls, nil
}
