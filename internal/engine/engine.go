// Package engine runs one research query through routing, dispatch,
// aggregation, verification and synthesis, and records every decision in a
// trace attached to the answer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/aggregate"
	"github.com/Harshitk-cp/smartsearch/internal/dispatch"
	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/metrics"
	"github.com/Harshitk-cp/smartsearch/internal/router"
	"github.com/Harshitk-cp/smartsearch/internal/synth"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
	"github.com/Harshitk-cp/smartsearch/internal/tracing"
	"github.com/Harshitk-cp/smartsearch/internal/verify"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultDeadline       = 20 * time.Second
	defaultMaxDeadline    = 2 * time.Minute
	defaultMaxResults     = 8
	defaultComposeTimeout = 15 * time.Second
)

// Registry is the backend set the engine routes over and dispatches to.
type Registry interface {
	router.BackendSet
	dispatch.Lookup
}

type Config struct {
	Deadline time.Duration
	// MaxDeadline bounds Options.DeadlineMs.
	MaxDeadline     time.Duration
	MaxResults      int
	ConfidenceFloor float64
	// ComposeTimeout caps the part of the deadline held back from dispatch
	// for aggregation and synthesis. At most a quarter of the budget is
	// reserved.
	ComposeTimeout time.Duration

	Dispatch  dispatch.Config
	Aggregate aggregate.Config
	Verify    verify.Config
	Synth     synth.Config
}

// Options are the per-request overrides of Config.
type Options struct {
	DeadlineMs           int      `json:"deadline_ms,omitempty"`
	Backends             []string `json:"backends,omitempty"`
	ConfidenceFloor      *float64 `json:"confidence_floor,omitempty"`
	MaxResultsPerBackend int      `json:"max_results_per_backend,omitempty"`
}

type Option func(*Engine)

// WithEmbedder switches aggregation to embedding similarity.
func WithEmbedder(e domain.EmbeddingClient) Option {
	return func(en *Engine) { en.embedder = e }
}

// WithClock replaces time.Now for trace timestamps. Deadlines always use
// the wall clock.
func WithClock(now func() time.Time) Option {
	return func(en *Engine) { en.now = now }
}

// BackendInfo describes a registered backend for listings.
type BackendInfo struct {
	ID          string  `json:"id"`
	Reliability float64 `json:"reliability"`
}

type Engine struct {
	registry   Registry
	router     *router.Router
	dispatcher *dispatch.Dispatcher
	aggregator *aggregate.Aggregator
	verifier   *verify.Verifier
	synth      *synth.Synthesizer
	embedder   domain.EmbeddingClient
	cfg        Config
	now        func() time.Time
	logger     *zap.Logger
}

func New(registry Registry, composer domain.Composer, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	if cfg.MaxDeadline <= 0 {
		cfg.MaxDeadline = defaultMaxDeadline
	}
	cfg.MaxDeadline = max(cfg.MaxDeadline, cfg.Deadline)
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.ConfidenceFloor <= 0 || cfg.ConfidenceFloor > 1 {
		cfg.ConfidenceFloor = verify.DefaultConfidenceFloor
	}
	if cfg.ComposeTimeout <= 0 {
		cfg.ComposeTimeout = defaultComposeTimeout
	}

	e := &Engine{registry: registry, cfg: cfg, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	e.router = router.New(registry, logger.Named("router"))
	e.dispatcher = dispatch.New(registry, cfg.Dispatch, logger.Named("dispatch"))
	e.aggregator = aggregate.New(cfg.Aggregate, e.embedder, logger.Named("aggregate"))
	e.verifier = verify.New(cfg.Verify, logger.Named("verify"))
	e.synth = synth.New(composer, cfg.Synth, logger.Named("synth"))
	return e
}

// Backends lists the registered backends with the reliability the verifier
// uses for them.
func (e *Engine) Backends() []BackendInfo {
	ids := e.registry.IDs()
	out := make([]BackendInfo, len(ids))
	for i, id := range ids {
		out[i] = BackendInfo{ID: id, Reliability: e.verifier.Reliability(id)}
	}
	return out
}

// Research answers raw with cited evidence. Failures are returned as a
// *domain.ResearchError that wraps the taxonomy error and carries the trace.
func (e *Engine) Research(ctx context.Context, raw string, opts Options) (*domain.SynthesizedAnswer, error) {
	start := e.now()
	ctx, span := tracing.StartSpan(ctx, "research")
	defer span.End()

	trace := domain.NewTraceWithClock(e.now)
	ans, err := e.research(ctx, raw, opts, start, trace)

	outcome := "success"
	if err != nil {
		outcome = outcomeLabel(err)
		tracing.RecordError(span, err)
	}
	span.SetAttributes(attribute.String("research.outcome", outcome))
	metrics.ResearchRequests.WithLabelValues(outcome).Inc()
	metrics.ResearchDuration.Observe(time.Since(start).Seconds())
	return ans, err
}

func (e *Engine) research(ctx context.Context, raw string, opts Options, start time.Time, trace *domain.Trace) (*domain.SynthesizedAnswer, error) {
	q, err := domain.NewQuery(raw)
	if err != nil {
		return nil, e.fail(domain.Query{}, trace, nil, err)
	}
	trace.Record(domain.StageQuery, textutil.Truncate(q.Raw, 120), "normalized", q.Normalized)

	if limit := e.cfg.MaxDeadline.Milliseconds(); int64(opts.DeadlineMs) > limit {
		return nil, e.fail(q, trace, nil, fmt.Errorf("%w: deadline_ms %d exceeds %d", domain.ErrInvalidOptions, opts.DeadlineMs, limit))
	}
	budget := e.cfg.Deadline
	if opts.DeadlineMs > 0 {
		budget = time.Duration(opts.DeadlineMs) * time.Millisecond
	}
	deadline := time.Now().Add(budget)
	dispatchDeadline := deadline.Add(-min(e.cfg.ComposeTimeout, budget/4))
	maxResults := e.cfg.MaxResults
	if opts.MaxResultsPerBackend > 0 {
		maxResults = opts.MaxResultsPerBackend
	}
	floor := e.cfg.ConfidenceFloor
	if opts.ConfidenceFloor != nil {
		floor = min(max(*opts.ConfidenceFloor, 0), 1)
	}

	_, routeSpan := tracing.StartSpan(ctx, "research.route")
	q, sel, err := e.router.Route(q, opts.Backends, trace)
	routeSpan.End()
	if err != nil {
		return nil, e.fail(q, trace, nil, err)
	}

	dispatchCtx, dispatchSpan := tracing.StartSpan(ctx, "research.dispatch",
		attribute.StringSlice("backends", sel.IDs()))
	res, err := e.dispatcher.Dispatch(dispatchCtx, q, sel, dispatch.Options{Deadline: dispatchDeadline, MaxResults: maxResults}, trace)
	dispatchSpan.End()
	var invocations []*domain.ToolInvocation
	if res != nil {
		invocations = res.Invocations
	}
	if err != nil {
		return nil, e.fail(q, trace, invocations, err)
	}

	postCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	aggCtx, aggSpan := tracing.StartSpan(postCtx, "research.aggregate")
	groups := e.aggregator.Aggregate(aggCtx, res.Evidence, sel, trace)
	aggSpan.SetAttributes(attribute.Int("groups", len(groups)))
	aggSpan.End()

	_, verifySpan := tracing.StartSpan(postCtx, "research.verify")
	verified := e.verifier.Verify(groups, floor, trace)
	verifySpan.End()

	synthCtx, synthSpan := tracing.StartSpan(postCtx, "research.synthesize")
	sr, err := e.synth.Synthesize(synthCtx, q, verified, trace)
	if err != nil {
		tracing.RecordError(synthSpan, err)
	}
	synthSpan.End()
	if err != nil {
		return nil, e.fail(q, trace, invocations, err)
	}

	trace.Recordf(domain.StageResponse, fmt.Sprintf("%d citations", len(sr.Citations)), "answered",
		"confidence %.3f in %s", sr.Confidence, e.now().Sub(start).Round(time.Millisecond))
	e.logger.Info("research completed",
		zap.String("query_id", q.ID.String()),
		zap.Strings("backends", sel.IDs()),
		zap.Int("evidence", len(res.Evidence)),
		zap.Int("groups", len(groups)),
		zap.Int("citations", len(sr.Citations)),
		zap.Float64("confidence", sr.Confidence),
		zap.Bool("fallback", sr.Fallback),
		zap.Duration("duration", e.now().Sub(start)),
	)

	return &domain.SynthesizedAnswer{
		QueryID:     q.ID.String(),
		Query:       q.Raw,
		Intents:     q.Intents(),
		Text:        sr.Text,
		Citations:   sr.Citations,
		Confidence:  sr.Confidence,
		Trace:       trace.Entries(),
		Invocations: invocations,
	}, nil
}

func (e *Engine) fail(q domain.Query, trace *domain.Trace, invocations []*domain.ToolInvocation, err error) error {
	queryID := ""
	if q.Normalized != "" {
		queryID = q.ID.String()
	}
	trace.Record(domain.StageResponse, outcomeLabel(err), "failed", err.Error())
	e.logger.Info("research failed",
		zap.String("query_id", queryID),
		zap.String("outcome", outcomeLabel(err)),
		zap.Error(err),
	)
	return &domain.ResearchError{
		QueryID:     queryID,
		Trace:       trace.Entries(),
		Invocations: invocations,
		Err:         err,
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		return "empty_query"
	case errors.Is(err, domain.ErrUnknownBackend):
		return "unknown_backend"
	case errors.Is(err, domain.ErrInvalidOptions):
		return "invalid_options"
	case errors.Is(err, domain.ErrNoEvidenceFound):
		return "no_evidence"
	case errors.Is(err, domain.ErrInsufficientEvidence):
		return "insufficient_evidence"
	case errors.Is(err, domain.ErrSynthesisFailed):
		return "synthesis_failed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
