package moderation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CityPulse/PulseGuard/pkg/infra/prometheus"
)

const (
	DefaultTimeout = 3 * time.Second
	DefaultBackoff = 500 * time.Millisecond

	serviceUnavailableMessage = "We couldn't check your message right now. Please try again in a moment."
)

// PipelineConfig tunes the orchestrator. Zero values fall back to the
// defaults above.
type PipelineConfig struct {
	// Timeout applies to each semantic stage attempt individually.
	Timeout time.Duration
	// Backoff is the fixed delay before the single semantic retry.
	Backoff time.Duration
	Policy  FailurePolicy
}

// Pipeline sequences the moderation stages: lexical filter, dynamic
// blocklist, result cache, toxicity scorer, semantic moderator. The
// first two and the cache short-circuit; the toxicity scorer is a
// supplementary signal; the semantic moderator is authoritative.
type Pipeline struct {
	lexical   Stage
	blocklist Stage
	toxicity  Stage
	semantic  Stage
	cache     Cache
	cfg       PipelineConfig
	logger    *logrus.Logger
}

func NewPipeline(
	cfg PipelineConfig,
	lexical Stage,
	blocklist Stage,
	toxicity Stage,
	semantic Stage,
	cache Cache,
	logger *logrus.Logger,
) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Pipeline{
		lexical:   lexical,
		blocklist: blocklist,
		toxicity:  toxicity,
		semantic:  semantic,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run evaluates a single piece of content end to end and returns the
// moderation result. It never returns an error: failures are folded
// into the result according to each stage's error policy.
func (p *Pipeline) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	log := p.requestLogger(req)

	// Deterministic stages first: they are free and protect the
	// paid-API budget.
	if out := p.lexical.Evaluate(ctx, req.Content); out.Blocked {
		log.WithField("stage", p.lexical.Name()).Info("content blocked by lexical filter")
		return p.finish(p.lexical.Name(), "blocked", start, Result{
			Allowed: false,
			Reason:  out.Reason,
			Debug: &DebugInfo{
				Decision: DecisionBlock,
				Category: "banned_term",
				Reason:   out.Reason,
			},
		})
	}

	if out := p.blocklist.Evaluate(ctx, req.Content); out.Blocked {
		log.WithField("stage", p.blocklist.Name()).Info("content blocked by dynamic blocklist")
		return p.finish(p.blocklist.Name(), "blocked", start, Result{
			Allowed: false,
			Reason:  out.Reason,
			Debug: &DebugInfo{
				Decision: DecisionBlock,
				Category: "blocklist",
				Reason:   out.Reason,
			},
		})
	} else if out.Err != nil {
		// The blocklist duplicates protection offered by later
		// stages; its failures degrade to "not blocked".
		prometheus.StageErrors.WithLabelValues(p.blocklist.Name()).Inc()
		log.WithError(out.Err).Warn("blocklist check failed, continuing")
	}

	key := CacheKey(req.Content)
	if cached, ok := p.cache.Get(key); ok {
		prometheus.CacheHits.Inc()
		res := cached
		if cached.Debug != nil {
			d := *cached.Debug
			d.CacheHit = true
			res.Debug = &d
		} else {
			res.Debug = &DebugInfo{CacheHit: true}
		}
		return p.finish("cache", outcomeLabel(res), start, res)
	}

	// Supplementary signal only: a toxicity block is recorded but
	// never terminates the pipeline, and its errors never reach the
	// caller.
	tox := p.toxicity.Evaluate(ctx, req.Content)
	if tox.Err != nil {
		prometheus.StageErrors.WithLabelValues(p.toxicity.Name()).Inc()
		log.WithError(tox.Err).Debug("toxicity scorer unavailable, continuing")
	} else if tox.Blocked {
		log.WithField("stage", p.toxicity.Name()).Info("toxicity scorer flagged content, deferring to semantic stage")
	}

	sem := p.evaluateSemantic(ctx, req.Content, log)
	if sem.Err != nil {
		prometheus.StageErrors.WithLabelValues(p.semantic.Name()).Inc()
		allowed := p.cfg.Policy.AllowOnFailure()
		log.WithError(sem.Err).WithField("fail_open", allowed).
			Error("semantic moderation unavailable after retry")
		res := Result{Allowed: allowed, ServiceError: true}
		if !allowed {
			res.Reason = serviceUnavailableMessage
		}
		// Service errors are never cached so a transient outage is
		// retried on the next submission.
		return p.finish(p.semantic.Name(), "service_error", start, res)
	}

	res := p.resultFromClassification(sem, tox)
	p.cache.Set(key, res)
	return p.finish(p.semantic.Name(), outcomeLabel(res), start, res)
}

func (p *Pipeline) evaluateSemantic(ctx context.Context, content string, log *logrus.Entry) Outcome {
	out := p.attemptSemantic(ctx, content)
	if out.Err == nil {
		return out
	}
	if ctx.Err() != nil {
		// Caller is gone; a retry would complete uselessly.
		return out
	}
	log.WithError(out.Err).Warn("semantic moderation attempt failed, retrying once")
	select {
	case <-time.After(p.cfg.Backoff):
	case <-ctx.Done():
		return Outcome{Err: ctx.Err()}
	}
	return p.attemptSemantic(ctx, content)
}

func (p *Pipeline) attemptSemantic(ctx context.Context, content string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.semantic.Evaluate(ctx, content)
}

func (p *Pipeline) resultFromClassification(sem Outcome, tox Outcome) Result {
	res := Result{Allowed: !sem.Blocked}
	if sem.Blocked {
		res.Reason = sem.Reason
	}
	if cls := sem.Classification; cls != nil {
		res.Debug = &DebugInfo{
			Decision:         cls.Decision,
			Category:         cls.Category,
			Confidence:       cls.Confidence,
			Reason:           cls.Reason,
			DetectedLanguage: cls.Language,
		}
	}
	// The semantic stage is context-aware and authoritative: a
	// toxicity-stage block never overrides a semantic ALLOW.
	if res.Allowed && tox.Blocked {
		p.logger.WithFields(logrus.Fields{
			"stage":  p.toxicity.Name(),
			"scores": tox.Scores,
		}).Info("toxicity flag overridden by semantic allow")
	}
	return res
}

func (p *Pipeline) requestLogger(req Request) *logrus.Entry {
	fields := logrus.Fields{"content_length": len(req.Content)}
	if req.Context != nil {
		if req.Context.TraceID != "" {
			fields["trace_id"] = req.Context.TraceID
		}
		if req.Context.Endpoint != "" {
			fields["endpoint"] = req.Context.Endpoint
		}
		if req.Context.UserID != "" {
			fields["user_id"] = req.Context.UserID
		}
	}
	return p.logger.WithFields(fields)
}

func (p *Pipeline) finish(stage, outcome string, start time.Time, res Result) Result {
	prometheus.ModerationDecisions.WithLabelValues(stage, outcome).Inc()
	prometheus.ModerationLatency.Observe(float64(time.Since(start).Milliseconds()))
	return res
}

func outcomeLabel(res Result) string {
	if res.ServiceError {
		return "service_error"
	}
	if res.Allowed {
		return "allowed"
	}
	return "blocked"
}
