package llm

import (
	"context"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
)

const (
	cerebrasAPIURL = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasModel  = "llama-3.3-70b"
)

// CerebrasClient speaks the OpenAI chat format against Cerebras inference.
type CerebrasClient struct {
	apiClient
}

func NewCerebrasClient(apiKey string) *CerebrasClient {
	return &CerebrasClient{apiClient: newAPIClient("cerebras", apiKey, cerebrasAPIURL)}
}

func (c *CerebrasClient) Compose(ctx context.Context, query string, evidence []domain.NumberedEvidence) (string, error) {
	return c.composeChat(ctx, cerebrasModel, query, evidence)
}
