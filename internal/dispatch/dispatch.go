package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/metrics"
	"github.com/Harshitk-cp/smartsearch/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxAttempts = 3
	defaultCallTimeout = 8 * time.Second
	defaultBackoffBase = 200 * time.Millisecond
	defaultBackoffMax  = 2 * time.Second
	defaultMargin      = 50 * time.Millisecond
	defaultDeadline    = 20 * time.Second
)

// Profile is the retry policy of one backend.
type Profile struct {
	MaxAttempts int
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func DefaultProfile() Profile {
	return Profile{
		MaxAttempts: defaultMaxAttempts,
		Timeout:     defaultCallTimeout,
		BackoffBase: defaultBackoffBase,
		BackoffMax:  defaultBackoffMax,
	}
}

func (p Profile) withDefaults() Profile {
	def := DefaultProfile()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = def.BackoffBase
	}
	if p.BackoffMax < p.BackoffBase {
		p.BackoffMax = max(def.BackoffMax, p.BackoffBase)
	}
	return p
}

// Backoff returns the wait before the attempt following attempt n (1-based):
// base * 2^(n-1), capped at BackoffMax.
func (p Profile) Backoff(n int) time.Duration {
	p = p.withDefaults()
	d := p.BackoffBase
	for i := 1; i < n && d < p.BackoffMax; i++ {
		d *= 2
	}
	return min(d, p.BackoffMax)
}

type Config struct {
	Profiles map[string]Profile
	Default  Profile
	// Concurrency caps simultaneous backend tasks; zero means one per selection.
	Concurrency int
	// Margin keeps every per-call timeout this far below the global deadline.
	Margin time.Duration
}

// Lookup resolves backend IDs to adapters.
type Lookup interface {
	Get(id string) (domain.Backend, bool)
}

type Options struct {
	Deadline   time.Time
	MaxResults int
}

// Result holds every invocation in selection-priority order. Evidence only
// comes from SUCCEEDED invocations.
type Result struct {
	Invocations []*domain.ToolInvocation
	Evidence    []domain.EvidenceItem
	Warnings    []string
}

func (r *Result) Succeeded() int {
	n := 0
	for _, inv := range r.Invocations {
		if inv.Status() == domain.StatusSucceeded {
			n++
		}
	}
	return n
}

type Dispatcher struct {
	backends Lookup
	cfg      Config
	logger   *zap.Logger
}

func New(backends Lookup, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Margin <= 0 {
		cfg.Margin = defaultMargin
	}
	cfg.Default = cfg.Default.withDefaults()
	return &Dispatcher{backends: backends, cfg: cfg, logger: logger}
}

func (d *Dispatcher) profile(id string) Profile {
	if p, ok := d.cfg.Profiles[id]; ok {
		return p.withDefaults()
	}
	return d.cfg.Default
}

type attemptRecord struct {
	attempt   int
	alternate bool
	err       *domain.BackendError
	decision  string
}

type outcome struct {
	index      int
	result     *domain.BackendResult
	err        error
	timedOut   bool
	attempts   []attemptRecord
	latency    time.Duration
	finishedAt time.Time
}

type task struct {
	index   int
	backend domain.Backend
	params  domain.InvokeParams
	profile Profile
}

// Dispatch invokes every selected backend concurrently and returns what has
// accumulated by opts.Deadline. Invocations still running at the deadline are
// marked TIMED_OUT and anything they return later is dropped. The trace is
// only written from the calling goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, q domain.Query, sel domain.BackendSelection, opts Options, trace *domain.Trace) (*Result, error) {
	if len(sel) == 0 {
		return nil, fmt.Errorf("%w: empty selection", domain.ErrUnknownBackend)
	}
	deadline := opts.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(defaultDeadline)
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ordered := make(domain.BackendSelection, len(sel))
	copy(ordered, sel)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	res := &Result{Invocations: make([]*domain.ToolInvocation, len(ordered))}
	var tasks []task
	for i, choice := range ordered {
		params := domain.InvokeParams{MaxResults: opts.MaxResults}
		inv := domain.NewToolInvocation(choice.BackendID, params)
		res.Invocations[i] = inv

		b, ok := d.backends.Get(choice.BackendID)
		if !ok {
			err := fmt.Errorf("%w: %s", domain.ErrUnknownBackend, choice.BackendID)
			_ = inv.Fail(err, 0)
			metrics.BackendInvocations.WithLabelValues(choice.BackendID, string(inv.Status())).Inc()
			trace.Record(domain.StageDispatcher, choice.BackendID, string(inv.Status()), err.Error())
			continue
		}
		tasks = append(tasks, task{index: i, backend: b, params: params, profile: d.profile(choice.BackendID)})
	}

	started := time.Now()
	trace.Recordf(domain.StageDispatcher, fmt.Sprintf("%d backends", len(tasks)), "fan out",
		"global deadline in %s", time.Until(deadline).Round(time.Millisecond))

	outcomes := make(chan outcome, len(tasks))
	g := new(errgroup.Group)
	if d.cfg.Concurrency > 0 {
		g.SetLimit(d.cfg.Concurrency)
	}
	// g.Go blocks once the limit is reached, so scheduling happens off the
	// collector goroutine to keep the deadline wait responsive.
	go func() {
		for _, t := range tasks {
			t := t
			g.Go(func() error {
				outcomes <- d.run(ctx, q, t, deadline)
				return nil
			})
		}
		_ = g.Wait()
	}()

	pending := make(map[int]bool, len(tasks))
	for _, t := range tasks {
		pending[t.index] = true
	}

collect:
	for len(pending) > 0 {
		select {
		case o := <-outcomes:
			d.apply(res.Invocations[o.index], o, deadline, trace)
			delete(pending, o.index)
		case <-ctx.Done():
			// Outcomes that finished in time may still be buffered.
			for {
				select {
				case o := <-outcomes:
					if o.finishedAt.After(deadline) {
						continue
					}
					d.apply(res.Invocations[o.index], o, deadline, trace)
					delete(pending, o.index)
				default:
					break collect
				}
			}
		}
	}

	for _, t := range tasks {
		if !pending[t.index] {
			continue
		}
		inv := res.Invocations[t.index]
		cause := fmt.Errorf("%w: global deadline reached", domain.ErrBackendUnavailable)
		if err := context.Cause(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			cause = fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		}
		_ = inv.TimeOut(cause, time.Since(started))
		d.finish(inv, trace, "still pending at the global deadline")
	}

	for _, inv := range res.Invocations {
		if inv.Status() != domain.StatusSucceeded {
			continue
		}
		res.Evidence = append(res.Evidence, inv.Items...)
		for _, w := range inv.Warnings {
			res.Warnings = append(res.Warnings, inv.BackendID+": "+w)
		}
	}

	if len(res.Evidence) == 0 {
		return res, fmt.Errorf("%w: %d of %d invocations succeeded", domain.ErrNoEvidenceFound, res.Succeeded(), len(res.Invocations))
	}
	return res, nil
}

// run executes the retry loop for one backend. It only touches its own
// outcome; the collector applies it to the shared invocation.
func (d *Dispatcher) run(ctx context.Context, q domain.Query, t task, deadline time.Time) outcome {
	id := t.backend.ID()
	ctx, span := tracing.StartSpan(ctx, "dispatch."+id, attribute.String("backend.id", id))
	defer span.End()

	start := time.Now()
	o := outcome{index: t.index}
	alternate := false

	for attempt := 1; ; attempt++ {
		remaining := time.Until(deadline) - d.cfg.Margin
		if remaining <= 0 {
			o.timedOut = true
			if o.err == nil {
				o.err = domain.Unavailable(id, 0, errors.New("no budget left before the global deadline"))
			}
			break
		}
		callTimeout := min(t.profile.Timeout, remaining)

		params := t.params
		params.Attempt = attempt
		params.AlternateStrategy = alternate

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		res, err := t.backend.Invoke(callCtx, q, params)
		expired := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()

		rec := attemptRecord{attempt: attempt, alternate: alternate}
		if err == nil {
			if res == nil {
				res = &domain.BackendResult{}
			}
			rec.decision = "success"
			o.attempts = append(o.attempts, rec)
			o.result = res
			o.err = nil
			break
		}

		be := domain.ClassifyBackendError(id, err)
		rec.err = be
		o.err = be

		// A call cut short by the budget margin cannot be retried either.
		if ctx.Err() != nil || (expired && callTimeout < t.profile.Timeout) {
			rec.decision = "give up: global deadline"
			o.attempts = append(o.attempts, rec)
			o.timedOut = true
			break
		}

		var wait time.Duration
		retry := false
		switch be.Kind {
		case domain.KindBlocked:
			if !alternate {
				alternate = true
				retry = true
			}
		default:
			if attempt < t.profile.MaxAttempts {
				retry = true
				wait = max(t.profile.Backoff(attempt), be.RetryAfter)
			}
		}

		if !retry {
			rec.decision = "give up: retries exhausted"
			o.attempts = append(o.attempts, rec)
			o.timedOut = expired
			break
		}
		if wait > 0 && wait >= time.Until(deadline)-d.cfg.Margin {
			rec.decision = fmt.Sprintf("give up: backoff %s exceeds remaining budget", wait)
			o.attempts = append(o.attempts, rec)
			break
		}

		if alternate && be.Kind == domain.KindBlocked {
			rec.decision = "retry with alternate strategy"
		} else {
			rec.decision = fmt.Sprintf("retry after %s", wait)
		}
		o.attempts = append(o.attempts, rec)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				o.timedOut = true
				o.latency = time.Since(start)
				o.finishedAt = time.Now()
				tracing.RecordError(span, o.err)
				return o
			}
		}
	}

	o.latency = time.Since(start)
	o.finishedAt = time.Now()
	if o.err != nil {
		tracing.RecordError(span, o.err)
	}
	span.SetAttributes(attribute.Int("backend.attempts", len(o.attempts)))
	return o
}

func (d *Dispatcher) apply(inv *domain.ToolInvocation, o outcome, deadline time.Time, trace *domain.Trace) {
	inv.Attempts = len(o.attempts)
	for _, a := range o.attempts {
		if a.err == nil {
			metrics.BackendAttempts.WithLabelValues(inv.BackendID, "success").Inc()
			continue
		}
		metrics.BackendAttempts.WithLabelValues(inv.BackendID, a.err.Kind.String()).Inc()
		input := fmt.Sprintf("%s attempt %d", inv.BackendID, a.attempt)
		if a.alternate {
			input += " (alternate strategy)"
		}
		trace.Record(domain.StageDispatcher, input, a.decision, a.err.Error())
		d.logger.Warn("backend attempt failed",
			zap.String("backend", inv.BackendID),
			zap.Int("attempt", a.attempt),
			zap.String("kind", a.err.Kind.String()),
			zap.String("decision", a.decision),
			zap.Error(a.err),
		)
	}

	var rationale string
	switch {
	case o.finishedAt.After(deadline):
		_ = inv.TimeOut(fmt.Errorf("%w: result arrived after the global deadline", domain.ErrBackendUnavailable), o.latency)
		rationale = "late result discarded"
	case o.err == nil:
		inv.Warnings = o.result.Warnings
		_ = inv.Succeed(o.result.Items, o.result.Raw, o.latency)
		rationale = fmt.Sprintf("%d items, %d warnings", len(o.result.Items), len(o.result.Warnings))
		metrics.BackendEvidenceItems.WithLabelValues(inv.BackendID).Observe(float64(len(o.result.Items)))
		for _, w := range o.result.Warnings {
			trace.Record(domain.StageDispatcher, inv.BackendID, "warning", w)
		}
	case o.timedOut:
		_ = inv.TimeOut(o.err, o.latency)
		rationale = o.err.Error()
	default:
		_ = inv.Fail(o.err, o.latency)
		rationale = o.err.Error()
	}
	d.finish(inv, trace, rationale)
}

func (d *Dispatcher) finish(inv *domain.ToolInvocation, trace *domain.Trace, rationale string) {
	metrics.BackendInvocations.WithLabelValues(inv.BackendID, string(inv.Status())).Inc()
	metrics.BackendLatency.WithLabelValues(inv.BackendID).Observe(inv.Latency.Seconds())
	trace.Recordf(domain.StageDispatcher, inv.BackendID, string(inv.Status()),
		"%s after %d attempts in %s", rationale, inv.Attempts, inv.Latency.Round(time.Millisecond))
	d.logger.Info("backend invocation finished",
		zap.String("backend", inv.BackendID),
		zap.String("status", string(inv.Status())),
		zap.Int("attempts", inv.Attempts),
		zap.Duration("latency", inv.Latency),
		zap.Int("items", len(inv.Items)),
	)
}
