package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
)

const (
	googleSearchURL = "https://www.google.com/search"
	bingSearchURL   = "https://www.bing.com/search"
	defaultCountry  = "US"
)

// SearchAdapter queries a search engine through the SERP API. General search
// and community discussion differ only in how the query term is rewritten.
type SearchAdapter struct {
	id      string
	client  *brightDataClient
	zone    string
	country string
	rewrite func(query string, alternate bool) string
	now     func() time.Time
}

// NewGeneralSearch queries Google, or Bing when the alternate strategy is set.
func NewGeneralSearch(opts Options, zone string) *SearchAdapter {
	return newSearchAdapter(domain.BackendGeneralSearch, opts, zone, func(q string, _ bool) string {
		return q
	})
}

// NewCommunityDiscussion restricts results to discussion forums.
func NewCommunityDiscussion(opts Options, zone string) *SearchAdapter {
	return newSearchAdapter(domain.BackendCommunityDiscussion, opts, zone, func(q string, alternate bool) string {
		if alternate {
			return "site:reddit.com OR site:quora.com " + q
		}
		return "site:reddit.com " + q
	})
}

func newSearchAdapter(id string, opts Options, zone string, rewrite func(string, bool) string) *SearchAdapter {
	return &SearchAdapter{
		id:      id,
		client:  newBrightDataClient(id, opts),
		zone:    zone,
		country: defaultCountry,
		rewrite: rewrite,
		now:     time.Now,
	}
}

func (a *SearchAdapter) ID() string { return a.id }

type serpRequest struct {
	Zone    string `json:"zone"`
	URL     string `json:"url"`
	Format  string `json:"format"`
	Country string `json:"country"`
}

type serpResponse struct {
	Organic []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Description string `json:"description"`
		Rank        int    `json:"rank"`
	} `json:"organic"`
}

func (a *SearchAdapter) Invoke(ctx context.Context, q domain.Query, params domain.InvokeParams) (*domain.BackendResult, error) {
	engine := googleSearchURL
	if params.AlternateStrategy {
		engine = bingSearchURL
	}
	target := engine + "?" + url.Values{
		"q":        {a.rewrite(q.Raw, params.AlternateStrategy)},
		"brd_json": {"1"},
	}.Encode()

	body, err := a.client.do(ctx, http.MethodPost, "/request", nil, serpRequest{
		Zone:    a.zone,
		URL:     target,
		Format:  "raw",
		Country: a.country,
	})
	if err != nil {
		return nil, err
	}

	var parsed serpResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.Unavailable(a.id, http.StatusOK, fmt.Errorf("decode serp response: %w", err))
	}

	limit := params.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	now := a.now().UTC()
	result := &domain.BackendResult{Raw: rawExcerpt(body)}
	for i, entry := range parsed.Organic {
		if len(result.Items) >= limit {
			break
		}
		if entry.Link == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("organic[%d]: missing link", i))
			continue
		}
		if entry.Description == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("organic[%d]: missing description", i))
			continue
		}
		rank := entry.Rank
		if rank <= 0 {
			rank = i + 1
		}
		item, err := domain.NewEvidenceItem(a.id, entry.Link, entry.Title,
			textutil.Truncate(entry.Description, maxSnippetChars), 1/float64(rank), now)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("organic[%d]: %v", i, err))
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}
