package moderation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/CityPulse/PulseGuard/pkg/moderation"
	"github.com/CityPulse/PulseGuard/pkg/moderation/resultcache"
)

// stubStage returns canned outcomes in order and counts calls. The last
// outcome repeats once the script is exhausted.
type stubStage struct {
	name     string
	blocking bool
	outcomes []moderation.Outcome
	calls    int
}

func (s *stubStage) Name() string   { return s.name }
func (s *stubStage) Blocking() bool { return s.blocking }

func (s *stubStage) Evaluate(ctx context.Context, content string) moderation.Outcome {
	i := s.calls
	s.calls++
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	if i < 0 {
		return moderation.Outcome{}
	}
	return s.outcomes[i]
}

func allowStage(name string) *stubStage {
	return &stubStage{name: name, outcomes: []moderation.Outcome{{}}}
}

func semanticAllow() moderation.Outcome {
	return moderation.Outcome{
		Classification: &moderation.Classification{
			Decision:   moderation.DecisionAllow,
			Category:   "none",
			Confidence: 0.97,
			Language:   "en",
		},
	}
}

func semanticBlock(category string) moderation.Outcome {
	return moderation.Outcome{
		Blocked: true,
		Reason:  moderation.UserMessageForCategory(category),
		Classification: &moderation.Classification{
			Decision:   moderation.DecisionBlock,
			Category:   category,
			Confidence: 0.91,
			Language:   "en",
		},
	}
}

type pipelineFixture struct {
	lexical   *stubStage
	blocklist *stubStage
	toxicity  *stubStage
	semantic  *stubStage
	cache     *resultcache.Cache
	pipeline  *moderation.Pipeline
}

func newFixture(policy moderation.FailurePolicy, semantic *stubStage) *pipelineFixture {
	f := &pipelineFixture{
		lexical:   allowStage("lexical"),
		blocklist: allowStage("blocklist"),
		toxicity:  allowStage("toxicity"),
		semantic:  semantic,
		cache:     resultcache.New(time.Minute, 100),
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	f.pipeline = moderation.NewPipeline(
		moderation.PipelineConfig{
			Timeout: 100 * time.Millisecond,
			Backoff: time.Millisecond,
			Policy:  policy,
		},
		f.lexical, f.blocklist, f.toxicity, f.semantic, f.cache, logger,
	)
	return f
}

func (f *pipelineFixture) run(content string) moderation.Result {
	return f.pipeline.Run(context.Background(), moderation.Request{Content: content})
}

func TestPipeline_LexicalBlockShortCircuits(t *testing.T) {
	f := newFixture(moderation.FailurePolicy{}, allowStage("semantic"))
	f.lexical.outcomes = []moderation.Outcome{{Blocked: true, Reason: "not allowed"}}

	res := f.run("banned stuff")

	assert.False(t, res.Allowed)
	assert.Equal(t, "not allowed", res.Reason)
	if assert.NotNil(t, res.Debug) {
		assert.Equal(t, "banned_term", res.Debug.Category)
	}
	assert.Equal(t, 0, f.blocklist.calls)
	assert.Equal(t, 0, f.toxicity.calls)
	assert.Equal(t, 0, f.semantic.calls)
}

func TestPipeline_BlocklistBlockShortCircuits(t *testing.T) {
	f := newFixture(moderation.FailurePolicy{}, allowStage("semantic"))
	f.blocklist.outcomes = []moderation.Outcome{{Blocked: true, Reason: "not allowed"}}

	res := f.run("listed term")

	assert.False(t, res.Allowed)
	if assert.NotNil(t, res.Debug) {
		assert.Equal(t, "blocklist", res.Debug.Category)
	}
	assert.Equal(t, 0, f.semantic.calls)
}

func TestPipeline_BlocklistFailureIsNonBlocking(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{semanticAllow()}}
	f := newFixture(moderation.FailurePolicy{}, sem)
	f.blocklist.outcomes = []moderation.Outcome{{Err: errors.New("redis down")}}

	res := f.run("Lost dog near Pine St, please keep an eye out")

	assert.True(t, res.Allowed)
	assert.False(t, res.ServiceError)
	assert.Equal(t, 1, f.semantic.calls)
}

func TestPipeline_CacheHitSkipsRemoteStages(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{semanticBlock("harassment")}}
	f := newFixture(moderation.FailurePolicy{}, sem)

	first := f.run("you are worthless")
	assert.False(t, first.Allowed)
	assert.Equal(t, 1, f.semantic.calls)

	second := f.run("you are worthless")
	assert.False(t, second.Allowed)
	assert.Equal(t, first.Reason, second.Reason)
	if assert.NotNil(t, second.Debug) {
		assert.True(t, second.Debug.CacheHit)
		assert.Equal(t, "harassment", second.Debug.Category)
	}
	assert.Equal(t, 1, f.semantic.calls, "cache hit must not call the semantic stage again")
	assert.Equal(t, 1, f.toxicity.calls)
}

func TestPipeline_CacheKeyIsCaseInsensitive(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{semanticAllow()}}
	f := newFixture(moderation.FailurePolicy{}, sem)

	f.run("Garage Sale On Elm St")
	f.run("  garage sale on elm st  ")

	assert.Equal(t, 1, f.semantic.calls)
}

func TestPipeline_SemanticFailureDefaultsToFailClosed(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{
		{Err: errors.New("provider timeout")},
	}}
	f := newFixture(moderation.FailurePolicy{Environment: "development"}, sem)

	res := f.run("hello neighbors")

	assert.False(t, res.Allowed)
	assert.True(t, res.ServiceError)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, 2, f.semantic.calls, "semantic stage gets exactly one retry")
}

func TestPipeline_SemanticFailureFailOpenOutsideProduction(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{
		{Err: errors.New("provider timeout")},
	}}
	f := newFixture(moderation.FailurePolicy{Environment: "development", FailOpen: true}, sem)

	res := f.run("hello neighbors")

	assert.True(t, res.Allowed)
	assert.True(t, res.ServiceError)
	assert.Empty(t, res.Reason)
}

func TestPipeline_ProductionIgnoresFailOpen(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{
		{Err: errors.New("provider timeout")},
	}}
	f := newFixture(moderation.FailurePolicy{Environment: "production", FailOpen: true}, sem)

	res := f.run("hello neighbors")

	assert.False(t, res.Allowed)
	assert.True(t, res.ServiceError)
}

func TestPipeline_ServiceErrorIsNotCached(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{
		{Err: errors.New("provider timeout")},
		{Err: errors.New("provider timeout")},
		semanticAllow(),
	}}
	f := newFixture(moderation.FailurePolicy{Environment: "development"}, sem)

	first := f.run("same content")
	assert.True(t, first.ServiceError)
	assert.Equal(t, 2, f.semantic.calls)

	second := f.run("same content")
	assert.False(t, second.ServiceError)
	assert.True(t, second.Allowed)
	assert.Equal(t, 3, f.semantic.calls, "failed result must not be served from cache")
}

func TestPipeline_RetrySucceedsOnSecondAttempt(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{
		{Err: errors.New("transient error")},
		semanticAllow(),
	}}
	f := newFixture(moderation.FailurePolicy{}, sem)

	res := f.run("hello neighbors")

	assert.True(t, res.Allowed)
	assert.False(t, res.ServiceError)
	assert.Equal(t, 2, f.semantic.calls)
}

func TestPipeline_ToxicityFailureIsIgnored(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{semanticAllow()}}
	f := newFixture(moderation.FailurePolicy{}, sem)
	f.toxicity.outcomes = []moderation.Outcome{{Err: errors.New("perspective down")}}

	res := f.run("Traffic is backed up on Main St near the school.")

	assert.True(t, res.Allowed)
	assert.False(t, res.ServiceError)
}

func TestPipeline_SemanticAllowOverridesToxicityFlag(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{semanticAllow()}}
	f := newFixture(moderation.FailurePolicy{}, sem)
	f.toxicity.outcomes = []moderation.Outcome{{
		Blocked: true,
		Reason:  "high toxicity",
		Scores:  &moderation.ToxicityScores{Toxicity: 0.93},
	}}

	res := f.run("this neighborhood meeting was a damn mess")

	assert.True(t, res.Allowed)
	assert.Empty(t, res.Reason)
}

func TestPipeline_SemanticBlockCarriesClassification(t *testing.T) {
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{semanticBlock("harassment")}}
	f := newFixture(moderation.FailurePolicy{}, sem)

	res := f.run("you people are worthless")

	assert.False(t, res.Allowed)
	assert.NotEmpty(t, res.Reason)
	if assert.NotNil(t, res.Debug) {
		assert.Equal(t, moderation.DecisionBlock, res.Debug.Decision)
		assert.Equal(t, "harassment", res.Debug.Category)
		assert.Equal(t, "en", res.Debug.DetectedLanguage)
		assert.False(t, res.Debug.CacheHit)
	}
}

func TestPipeline_CancelledContextSkipsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sem := &stubStage{name: "semantic", blocking: true, outcomes: []moderation.Outcome{
		{Err: errors.New("cut short")},
	}}
	f := newFixture(moderation.FailurePolicy{Environment: "development"}, sem)

	cancel()
	res := f.pipeline.Run(ctx, moderation.Request{Content: "hello"})

	assert.True(t, res.ServiceError)
	assert.Equal(t, 1, f.semantic.calls, "no retry once the caller's context is done")
}
