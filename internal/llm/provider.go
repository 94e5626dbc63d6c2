package llm

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderCerebras   = "cerebras"
	ProviderExtractive = "extractive"
	ProviderMock       = "mock"
)

// NewComposer creates a text-synthesis client based on the provider name.
// Returns an error if the provider is unknown or the API key is empty
// (except for extractive and mock).
func NewComposer(provider, apiKey string) (domain.Composer, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIClient(apiKey), nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic provider")
		}
		return NewAnthropicClient(apiKey), nil

	case ProviderGemini:
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiClient(apiKey), nil

	case ProviderCerebras:
		if apiKey == "" {
			return nil, fmt.Errorf("CEREBRAS_API_KEY is required for Cerebras provider")
		}
		return NewCerebrasClient(apiKey), nil

	case ProviderExtractive:
		return NewExtractive(0), nil

	case ProviderMock:
		return NewMockComposer(), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (valid options: openai, anthropic, gemini, cerebras, extractive, mock)", provider)
	}
}

func composeMessage(query string, evidence []domain.NumberedEvidence) string {
	return fmt.Sprintf(composePrompt, query, formatEvidence(evidence))
}

func formatEvidence(evidence []domain.NumberedEvidence) string {
	var sb strings.Builder
	for _, e := range evidence {
		fmt.Fprintf(&sb, "[%d] (%s) ", e.Index, e.BackendID)
		if e.Title != "" {
			sb.WriteString(e.Title)
			sb.WriteString(": ")
		}
		sb.WriteString(e.Snippet)
		fmt.Fprintf(&sb, "\n    source: %s\n", e.SourceURL)
	}
	return sb.String()
}

// stripCodeFence removes a markdown code fence some models wrap answers in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.Contains(s[:i], " ") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
