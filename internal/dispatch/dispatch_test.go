package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mockBackend implements domain.Backend with a scripted response per call.
type mockBackend struct {
	id      string
	respond func(ctx context.Context, params domain.InvokeParams) (*domain.BackendResult, error)

	mu    sync.Mutex
	calls []domain.InvokeParams
}

func (m *mockBackend) ID() string { return m.id }

func (m *mockBackend) Invoke(ctx context.Context, q domain.Query, params domain.InvokeParams) (*domain.BackendResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()
	return m.respond(ctx, params)
}

func (m *mockBackend) Calls() []domain.InvokeParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.InvokeParams(nil), m.calls...)
}

type mockLookup map[string]domain.Backend

func (m mockLookup) Get(id string) (domain.Backend, bool) {
	b, ok := m[id]
	return b, ok
}

func lookupOf(backends ...*mockBackend) mockLookup {
	m := mockLookup{}
	for _, b := range backends {
		m[b.id] = b
	}
	return m
}

func item(t *testing.T, backend, url, snippet string) domain.EvidenceItem {
	t.Helper()
	it, err := domain.NewEvidenceItem(backend, url, "", snippet, 0.5, time.Now())
	require.NoError(t, err)
	return it
}

func succeedWith(items ...domain.EvidenceItem) func(context.Context, domain.InvokeParams) (*domain.BackendResult, error) {
	return func(context.Context, domain.InvokeParams) (*domain.BackendResult, error) {
		return &domain.BackendResult{Items: items}, nil
	}
}

func fastConfig() Config {
	return Config{Default: Profile{MaxAttempts: 3, Timeout: time.Second, BackoffBase: time.Millisecond, BackoffMax: 4 * time.Millisecond}}
}

func selection(ids ...string) domain.BackendSelection {
	sel := make(domain.BackendSelection, len(ids))
	for i, id := range ids {
		sel[i] = domain.BackendChoice{BackendID: id, Priority: i, Rationale: "test"}
	}
	return sel
}

func mustQuery(t *testing.T) domain.Query {
	q, err := domain.NewQuery("what do students think about remote learning")
	require.NoError(t, err)
	return q
}

func TestDispatcher_AllSucceed(t *testing.T) {
	community := &mockBackend{id: "community", respond: succeedWith(
		item(t, "community", "https://reddit.com/a", "I liked it"),
		item(t, "community", "https://reddit.com/b", "It was lonely"),
	)}
	general := &mockBackend{id: "general", respond: succeedWith(item(t, "general", "https://news.example", "Survey results"))}

	d := New(lookupOf(community, general), fastConfig(), zaptest.NewLogger(t))
	trace := domain.NewTrace()
	res, err := d.Dispatch(context.Background(), mustQuery(t), selection("community", "general"),
		Options{Deadline: time.Now().Add(time.Second), MaxResults: 5}, trace)
	require.NoError(t, err)

	require.Len(t, res.Invocations, 2)
	assert.Equal(t, "community", res.Invocations[0].BackendID)
	for _, inv := range res.Invocations {
		assert.Equal(t, domain.StatusSucceeded, inv.Status())
		assert.Equal(t, 1, inv.Attempts)
	}
	require.Len(t, res.Evidence, 3)
	assert.Equal(t, "community", res.Evidence[0].BackendID, "evidence follows selection priority")
	assert.Equal(t, "general", res.Evidence[2].BackendID)
	assert.Equal(t, 5, community.Calls()[0].MaxResults)
	assert.Positive(t, trace.Len())
}

func TestDispatcher_RetriesUnavailable(t *testing.T) {
	flaky := &mockBackend{id: "flaky"}
	flaky.respond = func(ctx context.Context, p domain.InvokeParams) (*domain.BackendResult, error) {
		if p.Attempt < 2 {
			return nil, domain.Unavailable("flaky", 502, errors.New("bad gateway"))
		}
		return &domain.BackendResult{Items: []domain.EvidenceItem{item(t, "flaky", "https://a.example", "ok")}}, nil
	}

	d := New(lookupOf(flaky), fastConfig(), nil)
	res, err := d.Dispatch(context.Background(), mustQuery(t), selection("flaky"), Options{Deadline: time.Now().Add(time.Second)}, nil)
	require.NoError(t, err)
	inv := res.Invocations[0]
	assert.Equal(t, domain.StatusSucceeded, inv.Status())
	assert.Equal(t, 2, inv.Attempts)
	assert.False(t, flaky.Calls()[1].AlternateStrategy)
}

func TestDispatcher_RateLimitedExhaustsAttempts(t *testing.T) {
	limited := &mockBackend{id: "limited", respond: func(context.Context, domain.InvokeParams) (*domain.BackendResult, error) {
		return nil, domain.RateLimited("limited", 0, errors.New("slow down"))
	}}

	d := New(lookupOf(limited), fastConfig(), nil)
	res, err := d.Dispatch(context.Background(), mustQuery(t), selection("limited"), Options{Deadline: time.Now().Add(time.Second)}, nil)
	assert.ErrorIs(t, err, domain.ErrNoEvidenceFound)
	require.NotNil(t, res)

	inv := res.Invocations[0]
	assert.Equal(t, domain.StatusFailed, inv.Status())
	assert.Equal(t, 3, inv.Attempts)
	assert.ErrorIs(t, inv.Err, domain.ErrBackendRateLimited)
}

func TestDispatcher_BlockedRetriesOnceWithAlternateStrategy(t *testing.T) {
	tests := []struct {
		name       string
		recovers   bool
		wantStatus domain.InvocationStatus
	}{
		{"alternate succeeds", true, domain.StatusSucceeded},
		{"alternate blocked too", false, domain.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked := &mockBackend{id: "blocked"}
			blocked.respond = func(ctx context.Context, p domain.InvokeParams) (*domain.BackendResult, error) {
				if p.AlternateStrategy && tt.recovers {
					return &domain.BackendResult{Items: []domain.EvidenceItem{item(t, "blocked", "https://a.example", "ok")}}, nil
				}
				return nil, domain.Blocked("blocked", 403, errors.New("captcha"))
			}

			d := New(lookupOf(blocked), fastConfig(), nil)
			res, _ := d.Dispatch(context.Background(), mustQuery(t), selection("blocked"), Options{Deadline: time.Now().Add(time.Second)}, nil)
			inv := res.Invocations[0]
			assert.Equal(t, tt.wantStatus, inv.Status())
			assert.Equal(t, 2, inv.Attempts)

			calls := blocked.Calls()
			require.Len(t, calls, 2)
			assert.False(t, calls[0].AlternateStrategy)
			assert.True(t, calls[1].AlternateStrategy)
		})
	}
}

func TestDispatcher_GlobalDeadlineKeepsPartialResults(t *testing.T) {
	fast := &mockBackend{id: "fast", respond: succeedWith(item(t, "fast", "https://a.example", "quick answer"))}
	// slow ignores cancellation and answers well after the deadline.
	slow := &mockBackend{id: "slow", respond: func(context.Context, domain.InvokeParams) (*domain.BackendResult, error) {
		time.Sleep(250 * time.Millisecond)
		return &domain.BackendResult{}, nil
	}}

	d := New(lookupOf(fast, slow), fastConfig(), nil)
	start := time.Now()
	res, err := d.Dispatch(context.Background(), mustQuery(t), selection("slow", "fast"), Options{Deadline: start.Add(100 * time.Millisecond)}, domain.NewTrace())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 240*time.Millisecond, "dispatch must return at the deadline")
	assert.Equal(t, domain.StatusTimedOut, res.Invocations[0].Status())
	assert.Equal(t, domain.StatusSucceeded, res.Invocations[1].Status())
	require.Len(t, res.Evidence, 1)
	assert.Equal(t, "fast", res.Evidence[0].BackendID)
}

func TestDispatcher_PerCallTimeoutBelowDeadline(t *testing.T) {
	var got time.Duration
	b := &mockBackend{id: "b", respond: func(ctx context.Context, p domain.InvokeParams) (*domain.BackendResult, error) {
		if dl, ok := ctx.Deadline(); ok {
			got = time.Until(dl)
		}
		return &domain.BackendResult{Items: []domain.EvidenceItem{item(t, "b", "https://a.example", "x")}}, nil
	}}

	cfg := fastConfig()
	cfg.Default.Timeout = time.Hour
	d := New(lookupOf(b), cfg, nil)
	_, err := d.Dispatch(context.Background(), mustQuery(t), selection("b"), Options{Deadline: time.Now().Add(500 * time.Millisecond)}, nil)
	require.NoError(t, err)
	assert.Positive(t, got)
	assert.LessOrEqual(t, got, 450*time.Millisecond)
}

func TestDispatcher_RetryAfterBeyondBudgetGivesUp(t *testing.T) {
	limited := &mockBackend{id: "limited", respond: func(context.Context, domain.InvokeParams) (*domain.BackendResult, error) {
		return nil, domain.RateLimited("limited", time.Minute, errors.New("slow down"))
	}}

	d := New(lookupOf(limited), fastConfig(), nil)
	start := time.Now()
	res, err := d.Dispatch(context.Background(), mustQuery(t), selection("limited"), Options{Deadline: start.Add(time.Second)}, nil)
	assert.ErrorIs(t, err, domain.ErrNoEvidenceFound)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, res.Invocations[0].Attempts)
	assert.Equal(t, domain.StatusFailed, res.Invocations[0].Status())
}

func TestDispatcher_AllFailedReportsNoEvidence(t *testing.T) {
	down := &mockBackend{id: "down", respond: func(context.Context, domain.InvokeParams) (*domain.BackendResult, error) {
		return nil, errors.New("connection refused")
	}}
	empty := &mockBackend{id: "empty", respond: succeedWith()}

	d := New(lookupOf(down, empty), fastConfig(), nil)
	res, err := d.Dispatch(context.Background(), mustQuery(t), selection("down", "empty", "missing"), Options{Deadline: time.Now().Add(time.Second)}, nil)
	assert.ErrorIs(t, err, domain.ErrNoEvidenceFound)
	require.NotNil(t, res)
	assert.Equal(t, domain.StatusFailed, res.Invocations[0].Status())
	assert.ErrorIs(t, res.Invocations[0].Err, domain.ErrBackendUnavailable)
	assert.Equal(t, domain.StatusSucceeded, res.Invocations[1].Status())
	assert.Equal(t, domain.StatusFailed, res.Invocations[2].Status())
	assert.ErrorIs(t, res.Invocations[2].Err, domain.ErrUnknownBackend)
}

func TestDispatcher_RunsBackendsConcurrently(t *testing.T) {
	sleepy := func(id string) *mockBackend {
		return &mockBackend{id: id, respond: func(ctx context.Context, p domain.InvokeParams) (*domain.BackendResult, error) {
			time.Sleep(120 * time.Millisecond)
			return &domain.BackendResult{Items: []domain.EvidenceItem{item(t, id, "https://"+id+".example", "x")}}, nil
		}}
	}
	a, b, c := sleepy("a"), sleepy("b"), sleepy("c")

	d := New(lookupOf(a, b, c), fastConfig(), nil)
	start := time.Now()
	res, err := d.Dispatch(context.Background(), mustQuery(t), selection("a", "b", "c"), Options{Deadline: start.Add(2 * time.Second)}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Evidence, 3)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestDispatcher_EmptySelection(t *testing.T) {
	d := New(mockLookup{}, fastConfig(), nil)
	_, err := d.Dispatch(context.Background(), mustQuery(t), nil, Options{}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownBackend)
}

func TestProfileBackoff(t *testing.T) {
	p := Profile{BackoffBase: 200 * time.Millisecond, BackoffMax: 2 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1600 * time.Millisecond},
		{5, 2 * time.Second},
		{12, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDispatcher_CallTimeoutIsTimedOut(t *testing.T) {
	hang := &mockBackend{id: "hang", respond: func(ctx context.Context, _ domain.InvokeParams) (*domain.BackendResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	cfg := fastConfig()
	cfg.Default.MaxAttempts = 1
	cfg.Default.Timeout = 30 * time.Millisecond
	d := New(lookupOf(hang), cfg, nil)
	res, err := d.Dispatch(context.Background(), mustQuery(t), selection("hang"), Options{Deadline: time.Now().Add(time.Second)}, nil)
	assert.ErrorIs(t, err, domain.ErrNoEvidenceFound)
	assert.Equal(t, domain.StatusTimedOut, res.Invocations[0].Status())
	assert.ErrorIs(t, res.Invocations[0].Err, domain.ErrBackendUnavailable)
}
