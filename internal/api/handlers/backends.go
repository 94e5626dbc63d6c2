package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/smartsearch/internal/engine"
)

type backendsResponse struct {
	Backends []engine.BackendInfo `json:"backends"`
}

func (h *ResearchHandler) Backends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, backendsResponse{Backends: h.svc.Backends()})
}
