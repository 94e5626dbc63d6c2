package llm

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicModel       = "claude-3-5-haiku-20241022"
	anthropicVersion     = "2023-06-01"
	composeMaxTokens     = 1024
)

type AnthropicClient struct {
	apiClient
}

func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{apiClient: newAPIClient("anthropic", apiKey, anthropicMessagesURL)}
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// text joins the text blocks; tool-use and other block types are skipped.
func (r *anthropicResponse) text() (string, error) {
	if r.Error != nil {
		return "", errors.New(r.Error.Message)
	}
	var out string
	for _, block := range r.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", errors.New("no text content returned")
	}
	return out, nil
}

func (c *AnthropicClient) Compose(ctx context.Context, query string, evidence []domain.NumberedEvidence) (string, error) {
	var resp anthropicResponse
	return composed(c.post(ctx, c.endpoint, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}, anthropicRequest{
		Model:     anthropicModel,
		MaxTokens: composeMaxTokens,
		Messages:  []chatMessage{{Role: "user", Content: composeMessage(query, evidence)}},
	}, &resp))
}
