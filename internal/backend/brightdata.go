package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/buildconfig"
	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
	"github.com/Harshitk-cp/smartsearch/internal/tracing"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxRawChars       = 10000 // raw payload kept on an invocation
	maxSnippetChars   = 1200
	maxResponseBytes  = 5 << 20
	defaultMaxResults = 10
)

var blockedMarkers = []string{
	"captcha",
	"unusual traffic",
	"are you a robot",
	"verify you are human",
	"access denied",
}

// Options configures the shared Bright Data transport of an adapter.
type Options struct {
	BaseURL       string
	APIKey        string
	HTTPClient    *http.Client
	RatePerSecond float64
	Burst         int
	Logger        *zap.Logger
}

type brightDataClient struct {
	backendID  string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func newBrightDataClient(backendID string, opts Options) *brightDataClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &brightDataClient{
		backendID:  backendID,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.With(zap.String("backend", backendID)),
	}
}

// do sends one request and maps transport and status failures onto
// domain.BackendError kinds.
func (c *brightDataClient) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.Unavailable(c.backendID, 0, fmt.Errorf("outbound rate limit: %w", err))
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", c.backendID, err)
		}
		body = bytes.NewReader(b)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	ctx, span := tracing.StartBackendSpan(ctx, c.backendID, method, endpoint)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.backendID, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", buildconfig.UserAgent())
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		berr := domain.Unavailable(c.backendID, 0, fmt.Errorf("request failed: %w", err))
		tracing.RecordError(span, berr)
		return nil, berr
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		berr := domain.Unavailable(c.backendID, resp.StatusCode, fmt.Errorf("read response: %w", err))
		tracing.RecordError(span, berr)
		return nil, berr
	}

	if berr := classifyResponse(c.backendID, resp, respBody); berr != nil {
		c.logger.Debug("backend request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("kind", berr.Kind.String()),
		)
		tracing.RecordError(span, berr)
		return nil, berr
	}
	return respBody, nil
}

func classifyResponse(backendID string, resp *http.Response, body []byte) *domain.BackendError {
	status := resp.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		return domain.RateLimited(backendID, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			fmt.Errorf("status %d: %s", status, textutil.Truncate(string(body), 200)))
	case status == http.StatusForbidden:
		return domain.Blocked(backendID, status, fmt.Errorf("forbidden: %s", textutil.Truncate(string(body), 200)))
	case status >= 400:
		return domain.Unavailable(backendID, status, fmt.Errorf("status %d: %s", status, textutil.Truncate(string(body), 200)))
	}
	if looksBlocked(body) {
		return domain.Blocked(backendID, status, fmt.Errorf("anti-bot challenge in response body"))
	}
	return nil
}

// looksBlocked detects challenge pages served with a 2xx status. JSON bodies
// are never treated as challenges since result snippets may mention captchas.
func looksBlocked(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] == '{' || trimmed[0] == '[' {
		return false
	}
	lower := strings.ToLower(string(trimmed))
	for _, m := range blockedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func rawExcerpt(body []byte) []byte {
	return []byte(textutil.Truncate(string(body), maxRawChars))
}
