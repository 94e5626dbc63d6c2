package engine

import (
	"fmt"
	"net/http"

	"github.com/Harshitk-cp/smartsearch/internal/aggregate"
	"github.com/Harshitk-cp/smartsearch/internal/backend"
	"github.com/Harshitk-cp/smartsearch/internal/config"
	"github.com/Harshitk-cp/smartsearch/internal/dispatch"
	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/embedding"
	"github.com/Harshitk-cp/smartsearch/internal/llm"
	"github.com/Harshitk-cp/smartsearch/internal/verify"
	"go.uber.org/zap"
)

// Bootstrap builds an engine from the loaded environment and the optional
// backend profile file. Provider failures degrade (extractive composition,
// lexical dedup) instead of aborting startup.
func Bootstrap(logger *zap.Logger) (*Engine, error) {
	profiles, err := config.LoadBackendProfiles(config.BackendsFile())
	if err != nil {
		return nil, fmt.Errorf("load backend profiles: %w", err)
	}

	registry := BuildRegistry(profiles, &http.Client{}, logger)
	if registry.Len() == 0 {
		return nil, fmt.Errorf("%w: every backend is disabled", domain.ErrUnknownBackend)
	}
	logger.Info("backends registered", zap.Strings("backends", registry.IDs()))

	llmProvider := config.LLMProvider()
	composer, err := llm.NewComposer(llmProvider, config.LLMAPIKey())
	if err != nil {
		logger.Warn("LLM client initialization failed, composing extractively", zap.String("provider", llmProvider), zap.Error(err))
		composer = llm.NewExtractive(0)
	} else {
		logger.Info("LLM client initialized", zap.String("provider", llmProvider))
	}

	var opts []Option
	embeddingProvider := config.EmbeddingProvider()
	embedder, err := embedding.NewClient(embeddingProvider, config.EmbeddingAPIKey())
	switch {
	case err != nil:
		logger.Warn("Embedding client initialization failed", zap.String("provider", embeddingProvider), zap.Error(err))
	case embedder != nil:
		logger.Info("Embedding client initialized", zap.String("provider", embeddingProvider))
		opts = append(opts, WithEmbedder(embedder))
	}

	return New(registry, composer, ConfigFromProfiles(profiles), logger, opts...), nil
}

// BuildRegistry creates one adapter per enabled profile. deep-research is
// skipped when no dataset is configured.
func BuildRegistry(profiles map[string]config.BackendProfile, client *http.Client, logger *zap.Logger) *backend.Registry {
	if config.BrightDataAPIKey() == "" {
		logger.Warn("BRIGHTDATA_API_KEY is not set; backend calls will be rejected")
	}
	options := func(id string) backend.Options {
		p := profiles[id]
		return backend.Options{
			BaseURL:       config.BrightDataBaseURL(),
			APIKey:        config.BrightDataAPIKey(),
			HTTPClient:    client,
			RatePerSecond: p.RatePerSecond,
			Burst:         p.Burst,
			Logger:        logger,
		}
	}
	enabled := func(id string) bool {
		p, ok := profiles[id]
		if ok && !p.Enabled {
			logger.Info("backend disabled", zap.String("backend", id))
		}
		return ok && p.Enabled
	}

	var adapters []domain.Backend
	if enabled(domain.BackendGeneralSearch) {
		adapters = append(adapters, backend.NewGeneralSearch(options(domain.BackendGeneralSearch), config.BrightDataSERPZone()))
	}
	if enabled(domain.BackendCommunityDiscussion) {
		adapters = append(adapters, backend.NewCommunityDiscussion(options(domain.BackendCommunityDiscussion), config.BrightDataSERPZone()))
	}
	if enabled(domain.BackendDeepResearch) {
		if dataset := config.BrightDataPerplexityDatasetID(); dataset != "" {
			adapters = append(adapters, backend.NewDeepResearch(options(domain.BackendDeepResearch), dataset, config.DeepResearchPollInterval()))
		} else {
			logger.Warn("deep-research skipped: BRIGHTDATA_PERPLEXITY_DATASET_ID is not set")
		}
	}
	return backend.NewRegistry(adapters...)
}

// ConfigFromProfiles maps the environment and backend profiles onto the
// engine configuration.
func ConfigFromProfiles(profiles map[string]config.BackendProfile) Config {
	dispatchProfiles := make(map[string]dispatch.Profile, len(profiles))
	reliability := make(map[string]float64, len(profiles))
	for id, p := range profiles {
		dispatchProfiles[id] = dispatch.Profile{
			MaxAttempts: p.MaxAttempts,
			Timeout:     p.Timeout,
			BackoffBase: p.BackoffBase,
			BackoffMax:  p.BackoffMax,
		}
		reliability[id] = p.Reliability
	}

	return Config{
		Deadline:        config.ResearchDeadline(),
		MaxDeadline:     config.ResearchMaxDeadline(),
		MaxResults:      config.ResearchMaxResults(),
		ConfidenceFloor: config.ResearchConfidenceFloor(),
		ComposeTimeout:  config.ComposeTimeout(),
		Dispatch:        dispatch.Config{Profiles: dispatchProfiles},
		Aggregate: aggregate.Config{
			SimilarityThreshold: config.DedupSimilarityThreshold(),
			EmbeddingThreshold:  config.EmbeddingSimilarityThreshold(),
		},
		Verify: verify.Config{
			Reliability:            reliability,
			ContradictionThreshold: config.ContradictionThreshold(),
		},
	}
}
