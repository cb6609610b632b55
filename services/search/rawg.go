package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"playlog/models"
)

const rawgBaseURL = "https://api.rawg.io/api"

// RAWGProvider searches games through the RAWG keyword REST API.
type RAWGProvider struct {
	apiKey  string
	baseURL string
	transport
}

var _ CatalogProvider = (*RAWGProvider)(nil)

func NewRAWGProvider(apiKey, baseURL string, httpc *http.Client, opts ...Option) *RAWGProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = rawgBaseURL
	}
	return &RAWGProvider{
		apiKey:    strings.TrimSpace(apiKey),
		baseURL:   baseURL,
		transport: newTransport("rawg", httpc, opts),
	}
}

func (p *RAWGProvider) Name() string { return "rawg" }

type rawgSearchResponse struct {
	Results []struct {
		ID              int64   `json:"id"`
		Name            string  `json:"name"`
		BackgroundImage string  `json:"background_image"`
		Released        string  `json:"released"`
		Rating          float64 `json:"rating"`
	} `json:"results"`
}

func (p *RAWGProvider) Search(ctx context.Context, query string) ([]models.Candidate, error) {
	if p.apiKey == "" {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("key", p.apiKey)
	params.Set("search", query)
	params.Set("page_size", strconv.Itoa(p.limit))
	endpoint := p.baseURL + "/games?" + params.Encode()

	var resp rawgSearchResponse
	err := p.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &resp)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		candidates = append(candidates, models.Candidate{
			ID:           r.ID,
			Name:         r.Name,
			Image:        r.BackgroundImage,
			ReleasedYear: yearOf(r.Released),
			Rating:       r.Rating,
		})
	}
	return candidates, nil
}

// yearOf extracts the year from a YYYY-MM-DD date, or 0.
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
