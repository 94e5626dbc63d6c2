package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResearcher struct {
	answer *domain.SynthesizedAnswer
	err    error

	gotQuery string
	gotOpts  engine.Options
	calls    int
}

func (m *mockResearcher) Research(ctx context.Context, query string, opts engine.Options) (*domain.SynthesizedAnswer, error) {
	m.calls++
	m.gotQuery = query
	m.gotOpts = opts
	return m.answer, m.err
}

func (m *mockResearcher) Backends() []engine.BackendInfo {
	return []engine.BackendInfo{{ID: domain.BackendGeneralSearch, Reliability: 0.8}}
}

var testAnswer = &domain.SynthesizedAnswer{
	QueryID:    "q-1",
	Query:      "What is the capital of France?",
	Intents:    []domain.Intent{domain.IntentFact},
	Text:       "Paris is the capital of France [1].",
	Citations:  []domain.Citation{{Index: 1, GroupID: "g-1", SourceURL: "https://fr.example", Snippet: "Paris is the capital of France.", Confidence: 0.53}},
	Confidence: 0.53,
	Trace:      []domain.TraceEntry{{Stage: domain.StageRouter, Decision: "select general-search (priority 0)"}},
}

func researchErr(err error) error {
	return &domain.ResearchError{QueryID: "q-9", Trace: []domain.TraceEntry{{Stage: domain.StageResponse, Decision: "failed"}}, Err: err}
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestResearchHandler_Success(t *testing.T) {
	m := &mockResearcher{answer: testAnswer}
	h := NewResearchHandler(m)

	rec := post(h.Research, "/v1/research",
		`{"query":"What is the capital of France?","deadline_ms":5000,"backends":["general-search"],"confidence_floor":0.3,"max_results_per_backend":4}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "What is the capital of France?", m.gotQuery)
	assert.Equal(t, 5000, m.gotOpts.DeadlineMs)
	assert.Equal(t, []string{"general-search"}, m.gotOpts.Backends)
	require.NotNil(t, m.gotOpts.ConfidenceFloor)
	assert.Equal(t, 0.3, *m.gotOpts.ConfidenceFloor)
	assert.Equal(t, 4, m.gotOpts.MaxResultsPerBackend)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Paris is the capital of France [1].", body["answer"])
	assert.Equal(t, "q-1", body["query_id"])
	assert.Len(t, body["citations"], 1)
	assert.Len(t, body["trace"], 1)
}

func TestResearchHandler_ValidatesRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"query":`},
		{"negative deadline", `{"query":"q","deadline_ms":-1}`},
		{"floor above one", `{"query":"q","confidence_floor":1.5}`},
		{"negative max results", `{"query":"q","max_results_per_backend":-2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockResearcher{answer: testAnswer}
			rec := post(NewResearchHandler(m).Research, "/v1/research", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, m.calls)
		})
	}
}

func TestResearchHandler_ErrorMapping(t *testing.T) {
	sfe := &domain.SynthesisFailedError{
		Citations: []domain.Citation{{Index: 1, SourceURL: "https://kept.example"}},
		Err:       errors.New("model overloaded"),
	}
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"empty query", researchErr(domain.ErrEmptyQuery), http.StatusBadRequest, emptyQueryMessage},
		{"unknown backend", researchErr(fmt.Errorf("%w: web-archive", domain.ErrUnknownBackend)), http.StatusBadRequest, "unknown backend: web-archive"},
		{"deadline too large", researchErr(fmt.Errorf("%w: deadline_ms 9999999999 exceeds 120000", domain.ErrInvalidOptions)), http.StatusBadRequest, "invalid research options: deadline_ms 9999999999 exceeds 120000"},
		{"no evidence", researchErr(fmt.Errorf("%w: 0 of 2 invocations succeeded", domain.ErrNoEvidenceFound)), http.StatusServiceUnavailable, ""},
		{"insufficient evidence", researchErr(domain.ErrInsufficientEvidence), http.StatusUnprocessableEntity, "insufficient evidence"},
		{"synthesis failed", researchErr(sfe), http.StatusBadGateway, "synthesis failed: model overloaded"},
		{"unexpected", researchErr(errors.New("boom")), http.StatusInternalServerError, "research failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(NewResearchHandler(&mockResearcher{err: tt.err}).Research, "/v1/research", `{"query":"q"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body researchErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body.Error)
			}
			assert.Equal(t, "q-9", body.QueryID)
			assert.NotEmpty(t, body.Trace)
			if tt.wantStatus == http.StatusBadGateway {
				require.Len(t, body.Citations, 1)
				assert.Equal(t, "https://kept.example", body.Citations[0].SourceURL)
			}
		})
	}
}

func TestResearchHandler_Legacy(t *testing.T) {
	m := &mockResearcher{answer: testAnswer}
	rec := post(NewResearchHandler(m).Legacy, "/research", `{"query":"What is the capital of France?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body legacyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testAnswer.Text, body.Answer)
	assert.Len(t, body.Citations, 1)
	assert.Equal(t, engine.Options{}, m.gotOpts)

	rec = post(NewResearchHandler(&mockResearcher{err: researchErr(domain.ErrEmptyQuery)}).Legacy, "/research", `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Please enter a valid query."}`, rec.Body.String())
}

func TestResearchHandler_Backends(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResearchHandler(&mockResearcher{}).Backends(rec, httptest.NewRequest(http.MethodGet, "/v1/backends", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"backends":[{"id":"general-search","reliability":0.8}]}`, rec.Body.String())
}
