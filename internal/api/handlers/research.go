package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/engine"
)

const (
	maxBodyBytes = 64 << 10

	// Shown by the original front end for blank input.
	emptyQueryMessage = "Please enter a valid query."
)

// Researcher is the engine surface the handlers need.
type Researcher interface {
	Research(ctx context.Context, query string, opts engine.Options) (*domain.SynthesizedAnswer, error)
	Backends() []engine.BackendInfo
}

type ResearchHandler struct {
	svc Researcher
}

func NewResearchHandler(svc Researcher) *ResearchHandler {
	return &ResearchHandler{svc: svc}
}

type researchRequest struct {
	Query string `json:"query"`
	engine.Options
}

type researchErrorResponse struct {
	Error     string              `json:"error"`
	QueryID   string              `json:"query_id,omitempty"`
	Citations []domain.Citation   `json:"citations,omitempty"`
	Trace     []domain.TraceEntry `json:"trace,omitempty"`
}

type legacyResponse struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations,omitempty"`
}

// Research handles POST /v1/research.
func (h *ResearchHandler) Research(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeadlineMs < 0 || req.MaxResultsPerBackend < 0 {
		writeError(w, http.StatusBadRequest, "deadline_ms and max_results_per_backend must not be negative")
		return
	}
	if f := req.ConfidenceFloor; f != nil && (*f < 0 || *f > 1) {
		writeError(w, http.StatusBadRequest, "confidence_floor must be between 0 and 1")
		return
	}

	ans, err := h.svc.Research(r.Context(), req.Query, req.Options)
	if err != nil {
		status, resp := researchError(err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// Legacy handles POST /research, the original {"query"} -> {"answer"}
// contract.
func (h *ResearchHandler) Legacy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, emptyQueryMessage)
		return
	}

	ans, err := h.svc.Research(r.Context(), req.Query, engine.Options{})
	if err != nil {
		status, resp := researchError(err)
		writeJSON(w, status, researchErrorResponse{Error: resp.Error, Citations: resp.Citations})
		return
	}
	writeJSON(w, http.StatusOK, legacyResponse{Answer: ans.Text, Citations: ans.Citations})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func researchError(err error) (int, researchErrorResponse) {
	resp := researchErrorResponse{Error: err.Error()}
	var re *domain.ResearchError
	if errors.As(err, &re) {
		resp.QueryID = re.QueryID
		resp.Trace = re.Trace
	}

	var sfe *domain.SynthesisFailedError
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		resp.Error = emptyQueryMessage
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrUnknownBackend), errors.Is(err, domain.ErrInvalidOptions):
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrNoEvidenceFound):
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, domain.ErrInsufficientEvidence):
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &sfe):
		resp.Citations = sfe.Citations
		return http.StatusBadGateway, resp
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		resp.Error = "research request cancelled"
		return http.StatusServiceUnavailable, resp
	default:
		resp.Error = "research failed"
		return http.StatusInternalServerError, resp
	}
}
