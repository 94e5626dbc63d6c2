package llm

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"
	composeTemp   = 0.2
)

type OpenAIClient struct {
	apiClient
	model string
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{apiClient: newAPIClient("openai", apiKey, openAIChatURL), model: chatModel}
}

// Chat completion wire types, shared with OpenAI-compatible providers.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r *chatResponse) text() (string, error) {
	if r.Error != nil {
		return "", errors.New(r.Error.Message)
	}
	if len(r.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return r.Choices[0].Message.Content, nil
}

// composeChat runs one user turn against an OpenAI-style chat endpoint.
func (c *apiClient) composeChat(ctx context.Context, model, query string, evidence []domain.NumberedEvidence) (string, error) {
	var resp chatResponse
	return composed(c.post(ctx, c.endpoint, map[string]string{"Authorization": "Bearer " + c.apiKey}, chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: composeMessage(query, evidence)}},
		Temperature: composeTemp,
	}, &resp))
}

func (c *OpenAIClient) Compose(ctx context.Context, query string, evidence []domain.NumberedEvidence) (string, error) {
	return c.composeChat(ctx, c.model, query, evidence)
}
