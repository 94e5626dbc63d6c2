package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
	"go.uber.org/zap"
)

const (
	perplexityURL       = "https://www.perplexity.ai"
	alternateCountry    = "GB"
	defaultPollInterval = 2 * time.Second
	deepResearchFields  = "answer_text_markdown|sources"
)

// DeepResearchAdapter triggers a dataset collection that asks an answer
// engine the question, polls until the snapshot is ready, then turns each
// cited sentence of the answer into evidence for the source it cites.
type DeepResearchAdapter struct {
	client       *brightDataClient
	datasetID    string
	pollInterval time.Duration
	now          func() time.Time
}

func NewDeepResearch(opts Options, datasetID string, pollInterval time.Duration) *DeepResearchAdapter {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &DeepResearchAdapter{
		client:       newBrightDataClient(domain.BackendDeepResearch, opts),
		datasetID:    datasetID,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

func (a *DeepResearchAdapter) ID() string { return domain.BackendDeepResearch }

type triggerInput struct {
	URL     string `json:"url"`
	Prompt  string `json:"prompt"`
	Country string `json:"country,omitempty"`
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

type progressResponse struct {
	Status string `json:"status"`
}

type snapshotRecord struct {
	AnswerTextMarkdown string            `json:"answer_text_markdown"`
	Sources            []json.RawMessage `json:"sources"`
}

type source struct {
	URL     string
	Title   string
	Snippet string
}

func (a *DeepResearchAdapter) Invoke(ctx context.Context, q domain.Query, params domain.InvokeParams) (*domain.BackendResult, error) {
	snapshotID, err := a.trigger(ctx, q.Raw, params.AlternateStrategy)
	if err != nil {
		return nil, err
	}

	if err := a.waitReady(ctx, snapshotID); err != nil {
		return nil, err
	}

	body, err := a.client.do(ctx, http.MethodGet, "/datasets/v3/snapshot/"+url.PathEscape(snapshotID),
		url.Values{"format": {"json"}}, nil)
	if err != nil {
		return nil, err
	}

	var records []snapshotRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, domain.Unavailable(a.ID(), http.StatusOK, fmt.Errorf("decode snapshot: %w", err))
	}
	if len(records) == 0 {
		return nil, domain.Unavailable(a.ID(), http.StatusOK, errors.New("snapshot contained no records"))
	}

	limit := params.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	items, warnings := a.extract(records[0], limit)
	return &domain.BackendResult{Items: items, Warnings: warnings, Raw: rawExcerpt(body)}, nil
}

func (a *DeepResearchAdapter) trigger(ctx context.Context, prompt string, alternate bool) (string, error) {
	input := triggerInput{URL: perplexityURL, Prompt: prompt}
	if alternate {
		input.Country = alternateCountry
	}
	query := url.Values{
		"dataset_id":           {a.datasetID},
		"format":               {"json"},
		"custom_output_fields": {deepResearchFields},
	}

	body, err := a.client.do(ctx, http.MethodPost, "/datasets/v3/trigger", query, []triggerInput{input})
	if err != nil {
		return "", err
	}

	var resp triggerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domain.Unavailable(a.ID(), http.StatusOK, fmt.Errorf("decode trigger response: %w", err))
	}
	if resp.SnapshotID == "" {
		return "", domain.Unavailable(a.ID(), http.StatusOK, errors.New("trigger response missing snapshot_id"))
	}
	return resp.SnapshotID, nil
}

// waitReady polls the snapshot progress until it is ready, failed, or ctx is
// done.
func (a *DeepResearchAdapter) waitReady(ctx context.Context, snapshotID string) error {
	for {
		body, err := a.client.do(ctx, http.MethodGet, "/datasets/v3/progress/"+url.PathEscape(snapshotID), nil, nil)
		if err != nil {
			return err
		}

		var progress progressResponse
		if err := json.Unmarshal(body, &progress); err != nil {
			return domain.Unavailable(a.ID(), http.StatusOK, fmt.Errorf("decode progress: %w", err))
		}

		switch progress.Status {
		case "ready":
			return nil
		case "failed":
			return domain.Unavailable(a.ID(), http.StatusOK, fmt.Errorf("snapshot %s failed", snapshotID))
		}
		a.client.logger.Debug("snapshot not ready",
			zap.String("snapshot_id", snapshotID),
			zap.String("status", progress.Status),
		)

		timer := time.NewTimer(a.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Unavailable(a.ID(), 0, fmt.Errorf("waiting for snapshot: %w", ctx.Err()))
		case <-timer.C:
		}
	}
}

// extract maps "[n]" markers in answer sentences to the n-th source. When the
// answer carries no usable markers, source snippets become the evidence.
func (a *DeepResearchAdapter) extract(rec snapshotRecord, limit int) ([]domain.EvidenceItem, []string) {
	var warnings []string
	sources := make([]source, len(rec.Sources))
	for i, raw := range rec.Sources {
		src, err := parseSource(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("sources[%d]: %v", i, err))
			continue
		}
		sources[i] = src
	}

	now := a.now().UTC()
	var items []domain.EvidenceItem
	seen := make(map[string]bool)

	answer := textutil.CleanMarkdown(rec.AnswerTextMarkdown)
	if strings.TrimSpace(answer) == "" {
		warnings = append(warnings, "snapshot answer is empty")
	}

	for si, sentence := range textutil.Sentences(answer) {
		markers := textutil.Markers(sentence)
		if len(markers) == 0 {
			continue
		}
		text := textutil.StripMarkers(sentence)
		if text == "" {
			continue
		}
		for _, n := range markers {
			if n < 1 || n > len(sources) || sources[n-1].URL == "" {
				warnings = append(warnings, fmt.Sprintf("sentence %d cites unknown source [%d]", si+1, n))
				continue
			}
			key := fmt.Sprintf("%d|%s", n, text)
			if seen[key] {
				continue
			}
			seen[key] = true
			item, err := domain.NewEvidenceItem(a.ID(), sources[n-1].URL, sources[n-1].Title,
				textutil.Truncate(text, maxSnippetChars), 1/(1+0.1*float64(si)), now)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("sentence %d: %v", si+1, err))
				continue
			}
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		for i, src := range sources {
			text := src.Snippet
			if text == "" {
				text = src.Title
			}
			if src.URL == "" || text == "" {
				continue
			}
			item, err := domain.NewEvidenceItem(a.ID(), src.URL, src.Title,
				textutil.Truncate(text, maxSnippetChars), 0.5/(1+0.1*float64(i)), now)
			if err != nil {
				continue
			}
			items = append(items, item)
		}
	}

	if len(items) > limit {
		items = items[:limit]
	}
	return items, warnings
}

// parseSource accepts either a bare URL string or an object with url/link,
// title and snippet/description fields.
func parseSource(raw json.RawMessage) (source, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if strings.TrimSpace(asString) == "" {
			return source{}, errors.New("empty url")
		}
		return source{URL: strings.TrimSpace(asString)}, nil
	}

	var obj struct {
		URL         string `json:"url"`
		Link        string `json:"link"`
		Title       string `json:"title"`
		Snippet     string `json:"snippet"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return source{}, fmt.Errorf("unrecognized source entry: %w", err)
	}
	src := source{URL: obj.URL, Title: obj.Title, Snippet: obj.Snippet}
	if src.URL == "" {
		src.URL = obj.Link
	}
	if src.Snippet == "" {
		src.Snippet = obj.Description
	}
	src.URL = strings.TrimSpace(src.URL)
	if src.URL == "" {
		return source{}, errors.New("source has no url")
	}
	return src, nil
}
