package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by SMARTSEARCH_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("SMARTSEARCH_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured text-composition provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, gemini, cerebras, extractive, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock", "extractive":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingProvider returns the embedding provider used for semantic dedup.
// Defaults to "none", which keeps dedup purely lexical.
// Valid values: none, openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "none"
	}
	return p
}

func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "openai":
		return OpenAIAPIKey()
	default:
		return ""
	}
}

func BrightDataAPIKey() string {
	return os.Getenv("BRIGHTDATA_API_KEY")
}

func BrightDataSERPZone() string {
	return os.Getenv("BRIGHTDATA_SERP_ZONE")
}

func BrightDataPerplexityDatasetID() string {
	return os.Getenv("BRIGHTDATA_PERPLEXITY_DATASET_ID")
}

// BrightDataBaseURL defaults to the public API host.
func BrightDataBaseURL() string {
	u := os.Getenv("BRIGHTDATA_BASE_URL")
	if u == "" {
		return "https://api.brightdata.com"
	}
	return strings.TrimSuffix(u, "/")
}

// DeepResearchPollInterval is how often a pending dataset snapshot is polled.
// Defaults to 2s.
func DeepResearchPollInterval() time.Duration {
	return durationEnv("DEEP_RESEARCH_POLL_INTERVAL", 2*time.Second)
}

// ResearchDeadline is the default global budget for one query.
// Defaults to 20s.
func ResearchDeadline() time.Duration {
	ms, err := strconv.Atoi(os.Getenv("RESEARCH_DEADLINE_MS"))
	if err != nil || ms <= 0 {
		return 20 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

// ResearchMaxDeadline is the largest budget a request may ask for.
// Defaults to 2m.
func ResearchMaxDeadline() time.Duration {
	ms, err := strconv.Atoi(os.Getenv("RESEARCH_MAX_DEADLINE_MS"))
	if err != nil || ms <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(ms) * time.Millisecond
}

// ResearchMaxResults caps evidence items per backend. Defaults to 8.
func ResearchMaxResults() int {
	n, err := strconv.Atoi(os.Getenv("RESEARCH_MAX_RESULTS"))
	if err != nil || n <= 0 {
		return 8
	}
	return n
}

// ResearchConfidenceFloor defaults to 0.2.
func ResearchConfidenceFloor() float64 {
	return unitFloatEnv("RESEARCH_CONFIDENCE_FLOOR", 0.2)
}

// DedupSimilarityThreshold is the lexical similarity above which two
// snippets are merged. Defaults to 0.6.
func DedupSimilarityThreshold() float64 {
	return unitFloatEnv("DEDUP_SIMILARITY_THRESHOLD", 0.6)
}

// EmbeddingSimilarityThreshold is the cosine similarity above which two
// snippets are merged when an embedding provider is configured. Defaults to 0.9.
func EmbeddingSimilarityThreshold() float64 {
	return unitFloatEnv("EMBEDDING_SIMILARITY_THRESHOLD", 0.9)
}

// ContradictionThreshold is the polarity-stripped similarity at which two
// groups of opposite polarity are judged contradictory. Defaults to 0.5.
func ContradictionThreshold() float64 {
	return unitFloatEnv("CONTRADICTION_THRESHOLD", 0.5)
}

// ComposeTimeout caps the share of the deadline reserved for composition.
// Defaults to 15s.
func ComposeTimeout() time.Duration {
	return durationEnv("COMPOSE_TIMEOUT", 15*time.Second)
}

// BackendsFile points at an optional YAML file of backend profiles.
func BackendsFile() string {
	return os.Getenv("BACKENDS_FILE")
}

// RateLimitRPS returns requests per second limit for the HTTP API.
// Defaults to 10 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 10
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 5 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 5
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func TracingEnabled() bool {
	enabled, _ := strconv.ParseBool(os.Getenv("OTEL_ENABLED"))
	return enabled
}

func TracingServiceName() string {
	name := os.Getenv("OTEL_SERVICE_NAME")
	if name == "" {
		return "smartsearch"
	}
	return name
}

func TracingEndpoint() string {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return "localhost:4317"
	}
	return endpoint
}

func durationEnv(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func unitFloatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}
