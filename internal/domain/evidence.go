package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BackendGeneralSearch       = "general-search"
	BackendCommunityDiscussion = "community-discussion"
	BackendDeepResearch        = "deep-research"
)

// BackendChoice is one entry of a router selection. Lower Priority wins ties.
type BackendChoice struct {
	BackendID string `json:"backend_id"`
	Priority  int    `json:"priority"`
	Rationale string `json:"rationale"`
}

type BackendSelection []BackendChoice

func (s BackendSelection) IDs() []string {
	ids := make([]string, len(s))
	for i, c := range s {
		ids[i] = c.BackendID
	}
	return ids
}

// PriorityOf returns the priority recorded for id, or len(s) when id was not
// selected so unknown backends sort last.
func (s BackendSelection) PriorityOf(id string) int {
	for _, c := range s {
		if c.BackendID == id {
			return c.Priority
		}
	}
	return len(s)
}

// EvidenceItem is a snippet extracted from one backend response. Content
// fields are fixed at construction; the aggregator only fills GroupID on its
// own copies.
type EvidenceItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Snippet      string    `json:"snippet"`
	SourceURL    string    `json:"source_url"`
	BackendID    string    `json:"backend_id"`
	ExtractedAt  time.Time `json:"extracted_at"`
	RawRelevance float64   `json:"raw_relevance"`
	GroupID      string    `json:"group_id,omitempty"`
}

func NewEvidenceItem(backendID, sourceURL, title, snippet string, relevance float64, extractedAt time.Time) (EvidenceItem, error) {
	backendID = strings.TrimSpace(backendID)
	sourceURL = strings.TrimSpace(sourceURL)
	snippet = strings.TrimSpace(snippet)
	switch {
	case backendID == "":
		return EvidenceItem{}, fmt.Errorf("%w: missing backend id", ErrInvalidEvidence)
	case sourceURL == "":
		return EvidenceItem{}, fmt.Errorf("%w: missing source url", ErrInvalidEvidence)
	case snippet == "":
		return EvidenceItem{}, fmt.Errorf("%w: missing snippet", ErrInvalidEvidence)
	}
	if relevance < 0 {
		relevance = 0
	}
	if relevance > 1 {
		relevance = 1
	}
	return EvidenceItem{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(title),
		Snippet:      snippet,
		SourceURL:    sourceURL,
		BackendID:    backendID,
		ExtractedAt:  extractedAt,
		RawRelevance: relevance,
	}, nil
}

// EvidenceGroup is a dedup cluster. Corroboration is the number of distinct
// origin backends among its members.
type EvidenceGroup struct {
	ID             string         `json:"id"`
	Rank           int            `json:"rank"`
	Representative EvidenceItem   `json:"representative"`
	Members        []EvidenceItem `json:"members"`
	Backends       []string       `json:"backends"`
	Corroboration  int            `json:"corroboration"`
	BestPriority   int            `json:"best_priority"`
}

type VerificationVerdict struct {
	GroupID         string   `json:"group_id"`
	Corroboration   int      `json:"corroboration"`
	Contradiction   bool     `json:"contradiction"`
	ContradictsWith []string `json:"contradicts_with,omitempty"`
	Reliability     float64  `json:"reliability"`
	Confidence      float64  `json:"confidence"`
	Excluded        bool     `json:"excluded"`
}

type VerifiedGroup struct {
	Group   EvidenceGroup       `json:"group"`
	Verdict VerificationVerdict `json:"verdict"`
}
