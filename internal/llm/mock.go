package llm

import (
	"context"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
)

// MockComposer is a configurable composer for testing. When Response is
// empty it answers extractively so output always carries valid citations.
type MockComposer struct {
	Response string
	Err      error
	// Delay holds Compose back, returning early with ctx.Err() when ctx ends.
	Delay time.Duration

	// Call tracking for assertions
	Calls []MockComposeCall
}

type MockComposeCall struct {
	Query    string
	Evidence []domain.NumberedEvidence
}

func NewMockComposer() *MockComposer {
	return &MockComposer{}
}

func (m *MockComposer) Compose(ctx context.Context, query string, evidence []domain.NumberedEvidence) (string, error) {
	m.Calls = append(m.Calls, MockComposeCall{Query: query, Evidence: evidence})
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Response == "" {
		return ExtractiveAnswer(evidence, 0), nil
	}
	return m.Response, nil
}
