package llm

import (
	"context"
	"errors"
	"net/url"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

type GeminiClient struct {
	apiClient
}

func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{apiClient: newAPIClient("gemini", apiKey, geminiBaseURL)}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float32 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (r *geminiResponse) text() (string, error) {
	if r.Error != nil {
		return "", errors.New(r.Error.Message)
	}
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content returned")
	}
	if r.Candidates[0].FinishReason == "SAFETY" {
		return "", errors.New("answer withheld by safety filter")
	}
	return r.Candidates[0].Content.Parts[0].Text, nil
}

func (c *GeminiClient) Compose(ctx context.Context, query string, evidence []domain.NumberedEvidence) (string, error) {
	req := geminiRequest{Contents: []geminiContent{{
		Parts: []geminiPart{{Text: composeMessage(query, evidence)}},
		Role:  "user",
	}}}
	req.GenerationConfig.Temperature = composeTemp

	// Gemini authenticates with a key query parameter.
	endpoint := c.endpoint + "?key=" + url.QueryEscape(c.apiKey)
	var resp geminiResponse
	return composed(c.post(ctx, endpoint, nil, req, &resp))
}
