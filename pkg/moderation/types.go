package moderation

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Decision is the classifier verdict for a piece of content.
type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionBlock Decision = "BLOCK"
)

// maxCacheKeyRunes bounds the normalized content prefix used as cache key.
const maxCacheKeyRunes = 500

// Request carries the content to moderate plus optional diagnostic
// context. The context is never forwarded to external stages.
type Request struct {
	Content string
	Context *RequestContext
}

type RequestContext struct {
	TraceID  string
	Endpoint string
	UserID   string
}

// Result is the final outcome of a pipeline run. It is built once and
// never mutated afterwards.
type Result struct {
	Allowed      bool
	Reason       string
	ServiceError bool
	Debug        *DebugInfo
}

// DebugInfo is internal diagnostic detail. It must never cross the
// service boundary.
type DebugInfo struct {
	Decision         Decision
	Category         string
	Confidence       float64
	Reason           string
	DetectedLanguage string
	CacheHit         bool
}

// ToxicityScores holds the per-axis scores returned by the toxicity
// scoring API. All values are in [0,1].
type ToxicityScores struct {
	Toxicity       float64
	SevereToxicity float64
	IdentityAttack float64
	Insult         float64
	Threat         float64
}

// Classification is the structured verdict of the semantic moderator.
type Classification struct {
	Decision   Decision `json:"decision"`
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason,omitempty"`
	Language   string   `json:"language,omitempty"`
}

// Outcome is the uniform result of a single stage evaluation.
// Interpretation of Err depends on the stage's Blocking flag: a
// non-blocking stage's error is absorbed by the orchestrator, a
// blocking stage's error surfaces as a service failure.
type Outcome struct {
	Blocked        bool
	Reason         string
	Err            error
	Scores         *ToxicityScores
	Classification *Classification
}

// Stage is one step of the moderation pipeline.
type Stage interface {
	Name() string
	// Blocking reports whether a failure of this stage must be
	// visible to the caller as a service error.
	Blocking() bool
	Evaluate(ctx context.Context, content string) Outcome
}

// Cache stores pipeline results keyed by normalized content. It must
// be safe for concurrent use; implementations are injected so the
// in-process cache can be swapped for a distributed one.
type Cache interface {
	Get(key string) (Result, bool)
	Set(key string, result Result)
}

// CacheKey derives the cache key for a piece of content: lower-cased,
// trimmed, truncated to the first 500 runes. Two long messages that
// share a prefix share a cached decision; the key is a coarse
// resubmission-spam suppressor, not a content hash.
func CacheKey(content string) string {
	key := strings.ToLower(strings.TrimSpace(content))
	if utf8.RuneCountInString(key) <= maxCacheKeyRunes {
		return key
	}
	runes := []rune(key)
	return string(runes[:maxCacheKeyRunes])
}

var categoryMessages = map[string]string{
	"hate_speech":          "Your message appears to contain hate speech and can't be posted.",
	"harassment":           "Your message appears to contain harassment or threats and can't be posted.",
	"sexual_content":       "Your message appears to contain sexual content and can't be posted.",
	"contact_solicitation": "Sharing or requesting off-platform contact details isn't allowed.",
	"spam":                 "Your message looks like spam or nonsense and can't be posted.",
	"dangerous":            "Your message appears to describe dangerous or illegal activity and can't be posted.",
}

// UserMessageForCategory maps a classifier category to a user-safe
// rejection message.
func UserMessageForCategory(category string) string {
	if msg, ok := categoryMessages[category]; ok {
		return msg
	}
	return "This message violates our community guidelines and can't be posted."
}
