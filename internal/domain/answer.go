package domain

import (
	"context"
	"fmt"
	"time"
)

type Stage string

const (
	StageQuery      Stage = "query"
	StageRouter     Stage = "router"
	StageDispatcher Stage = "dispatcher"
	StageAggregator Stage = "aggregator"
	StageVerifier   Stage = "verifier"
	StageSynthesis  Stage = "synthesizer"
	StageResponse   Stage = "response"
)

type TraceEntry struct {
	Stage        Stage     `json:"stage"`
	InputSummary string    `json:"input_summary"`
	Decision     string    `json:"decision"`
	Rationale    string    `json:"rationale"`
	Timestamp    time.Time `json:"timestamp"`
}

// Trace is the ordered decision log of one query. It is written by one
// goroutine at a time; the dispatcher only records from its collector.
type Trace struct {
	entries []TraceEntry
	now     func() time.Time
}

func NewTrace() *Trace {
	return &Trace{now: time.Now}
}

// NewTraceWithClock is used by tests that need stable timestamps.
func NewTraceWithClock(now func() time.Time) *Trace {
	return &Trace{now: now}
}

func (t *Trace) Record(stage Stage, input, decision, rationale string) {
	if t == nil {
		return
	}
	t.entries = append(t.entries, TraceEntry{
		Stage:        stage,
		InputSummary: input,
		Decision:     decision,
		Rationale:    rationale,
		Timestamp:    t.now().UTC(),
	})
}

func (t *Trace) Recordf(stage Stage, input, decision, format string, args ...any) {
	t.Record(stage, input, decision, fmt.Sprintf(format, args...))
}

func (t *Trace) Entries() []TraceEntry {
	if t == nil {
		return nil
	}
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

type Citation struct {
	Index         int     `json:"index"`
	GroupID       string  `json:"group_id"`
	EvidenceID    string  `json:"evidence_id"`
	SourceURL     string  `json:"source_url"`
	Title         string  `json:"title,omitempty"`
	Snippet       string  `json:"snippet"`
	BackendID     string  `json:"backend_id"`
	Corroboration int     `json:"corroboration"`
	Confidence    float64 `json:"confidence"`
	Contradiction bool    `json:"contradiction,omitempty"`
}

type SynthesizedAnswer struct {
	QueryID     string            `json:"query_id"`
	Query       string            `json:"query"`
	Intents     []Intent          `json:"intents"`
	Text        string            `json:"answer"`
	Citations   []Citation        `json:"citations"`
	Confidence  float64           `json:"confidence"`
	Trace       []TraceEntry      `json:"trace"`
	Invocations []*ToolInvocation `json:"invocations,omitempty"`
}

// NumberedEvidence is the view of a verified group handed to a composer;
// Index is the citation marker the composer must use.
type NumberedEvidence struct {
	Index     int
	Title     string
	Snippet   string
	SourceURL string
	BackendID string
}

// Backend is the uniform adapter contract. The call deadline travels in ctx.
type Backend interface {
	ID() string
	Invoke(ctx context.Context, q Query, params InvokeParams) (*BackendResult, error)
}

// Composer turns numbered evidence into prose carrying [n] markers.
type Composer interface {
	Compose(ctx context.Context, query string, evidence []NumberedEvidence) (string, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
