package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

// APIError is a non-200 answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// completion is a decoded provider response that yields the answer text or
// the provider's own error.
type completion interface {
	text() (string, error)
}

// apiClient holds what every hosted provider needs: who it is, where to post
// and how to authenticate.
type apiClient struct {
	provider   string
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func newAPIClient(provider, apiKey, endpoint string) apiClient {
	return apiClient{provider: provider, apiKey: apiKey, endpoint: endpoint, httpClient: &http.Client{}}
}

// post sends payload as JSON to url and decodes a 200 answer into out.
func (c *apiClient) post(ctx context.Context, url string, headers map[string]string, payload any, out completion) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", c.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", c.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return "", &APIError{Provider: c.provider, StatusCode: resp.StatusCode, Body: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return "", fmt.Errorf("unmarshal %s response: %w", c.provider, err)
	}
	text, err := out.text()
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", c.provider, err)
	}
	return strings.TrimSpace(text), nil
}

func composed(text string, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("compose: %w", err)
	}
	return stripCodeFence(text), nil
}
