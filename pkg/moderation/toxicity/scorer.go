package toxicity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CityPulse/PulseGuard/pkg/infra/httpx"
	"github.com/CityPulse/PulseGuard/pkg/moderation"
)

const (
	StageName = "toxicity"

	DefaultEndpoint = "https://commentanalyzer.googleapis.com/v1alpha1/comments:analyze"

	defaultTimeout         = 2 * time.Second
	defaultThreshold       = 0.8
	defaultSevereThreshold = 0.7

	breakerOpenFor   = 30 * time.Second
	breakerTripAfter = 5
	breakerMaxProbes = 5

	blockedMessage = "Your message was flagged as toxic and can't be posted."
)

var requestedAttributes = []string{
	"TOXICITY",
	"SEVERE_TOXICITY",
	"IDENTITY_ATTACK",
	"INSULT",
	"THREAT",
}

type Config struct {
	// APIKey is optional; when empty the stage is disabled and no
	// call is made.
	APIKey          string
	Endpoint        string
	Timeout         time.Duration
	Threshold       float64
	SevereThreshold float64
}

// Scorer calls an external toxicity-scoring API. It is a supplementary
// signal and always fails open: any failure yields "allowed" with the
// error recorded, never a service error for the overall request.
type Scorer struct {
	client  httpx.Client
	breaker httpx.CircuitBreaker
	logger  *logrus.Logger
	cfg     Config
}

func NewScorer(cfg Config, client httpx.Client, logger *logrus.Logger) *Scorer {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.SevereThreshold <= 0 {
		cfg.SevereThreshold = defaultSevereThreshold
	}
	return &Scorer{
		client:  client,
		breaker: httpx.NewCircuitBreaker(httpx.BreakerSettings{
			Name:      StageName,
			OpenFor:   breakerOpenFor,
			TripAfter: breakerTripAfter,
			MaxProbes: breakerMaxProbes,
		}),
		logger:  logger,
		cfg:     cfg,
	}
}

func (s *Scorer) Name() string {
	return StageName
}

func (s *Scorer) Blocking() bool {
	return false
}

func (s *Scorer) Evaluate(ctx context.Context, content string) moderation.Outcome {
	if s.cfg.APIKey == "" {
		// Stage disabled by configuration.
		return moderation.Outcome{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var scores moderation.ToxicityScores
	err := s.breaker.Execute(func() error {
		fetched, err := s.fetchScores(ctx, content)
		if err != nil {
			return err
		}
		scores = *fetched
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Debug("toxicity scoring failed")
		return moderation.Outcome{Err: err}
	}

	out := moderation.Outcome{Scores: &scores}
	if scores.Toxicity >= s.cfg.Threshold || scores.SevereToxicity >= s.cfg.SevereThreshold {
		out.Blocked = true
		out.Reason = blockedMessage
	}
	return out
}

type analyzeRequest struct {
	Comment             analyzeComment             `json:"comment"`
	RequestedAttributes map[string]json.RawMessage `json:"requestedAttributes"`
	DoNotStore          bool                       `json:"doNotStore"`
}

type analyzeComment struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	AttributeScores map[string]attributeScore `json:"attributeScores"`
}

type attributeScore struct {
	SummaryScore summaryScore `json:"summaryScore"`
}

type summaryScore struct {
	Value float64 `json:"value"`
}

func (s *Scorer) fetchScores(ctx context.Context, content string) (*moderation.ToxicityScores, error) {
	attrs := make(map[string]json.RawMessage, len(requestedAttributes))
	for _, attr := range requestedAttributes {
		attrs[attr] = json.RawMessage("{}")
	}

	reqBody := analyzeRequest{
		Comment:             analyzeComment{Text: content},
		RequestedAttributes: attrs,
		DoNotStore:          true,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", s.cfg.Endpoint, s.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send analyze request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read analyze response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("toxicity API returned status %d", httpResp.StatusCode)
	}

	var resp analyzeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analyze response: %w", err)
	}
	if len(resp.AttributeScores) == 0 {
		return nil, fmt.Errorf("no attribute scores returned")
	}

	return &moderation.ToxicityScores{
		Toxicity:       resp.AttributeScores["TOXICITY"].SummaryScore.Value,
		SevereToxicity: resp.AttributeScores["SEVERE_TOXICITY"].SummaryScore.Value,
		IdentityAttack: resp.AttributeScores["IDENTITY_ATTACK"].SummaryScore.Value,
		Insult:         resp.AttributeScores["INSULT"].SummaryScore.Value,
		Threat:         resp.AttributeScores["THREAT"].SummaryScore.Value,
	}, nil
}
