package blocklist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/CityPulse/PulseGuard/pkg/moderation"
)

const (
	StageName = "blocklist"

	// BlocklistKey is the redis set holding banned terms and phrases.
	// Operators mutate it directly (SADD/SREM), no deploy needed.
	BlocklistKey = "moderation:blocklist"

	lookupTimeout = 2 * time.Second

	blockedMessage = "Your message contains a blocked term and can't be posted."
)

// Checker evaluates content against a mutable, externally managed term
// list. Lookup failures degrade to "not blocked": the later stages
// duplicate this protection.
type Checker struct {
	client redis.Cmdable
	logger *logrus.Logger
}

func NewChecker(client redis.Cmdable, logger *logrus.Logger) *Checker {
	return &Checker{
		client: client,
		logger: logger,
	}
}

func (c *Checker) Name() string {
	return StageName
}

func (c *Checker) Blocking() bool {
	return false
}

func (c *Checker) Evaluate(ctx context.Context, content string) moderation.Outcome {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	terms, err := c.client.SMembers(ctx, BlocklistKey).Result()
	if err != nil {
		return moderation.Outcome{Err: fmt.Errorf("blocklist lookup: %w", err)}
	}

	norm := strings.ToLower(content)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.Contains(norm, term) {
			c.logger.WithField("term", term).Debug("content matched blocklist term")
			return moderation.Outcome{
				Blocked: true,
				Reason:  blockedMessage,
			}
		}
	}

	return moderation.Outcome{}
}
