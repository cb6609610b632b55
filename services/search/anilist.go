package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"playlog/models"
)

const anilistURL = "https://graphql.anilist.co"

const anilistQuery = `query {
  Page(page: 1, perPage: %d) {
    media(search: "%s", type: ANIME) {
      id
      title { userPreferred romaji english }
      coverImage { large }
      startDate { year }
      averageScore
    }
  }
}`

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// AniListProvider searches anime through the AniList GraphQL API.
type AniListProvider struct {
	endpoint string
	transport
}

var _ CatalogProvider = (*AniListProvider)(nil)

func NewAniListProvider(endpoint string, httpc *http.Client, opts ...Option) *AniListProvider {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = anilistURL
	}
	return &AniListProvider{endpoint: endpoint, transport: newTransport("anilist", httpc, opts)}
}

func (p *AniListProvider) Name() string { return "anilist" }

type anilistResponse struct {
	Data struct {
		Page struct {
			Media []struct {
				ID    int64 `json:"id"`
				Title struct {
					UserPreferred string `json:"userPreferred"`
					Romaji        string `json:"romaji"`
					English       string `json:"english"`
				} `json:"title"`
				CoverImage struct {
					Large string `json:"large"`
				} `json:"coverImage"`
				StartDate struct {
					Year *int `json:"year"`
				} `json:"startDate"`
				AverageScore *float64 `json:"averageScore"`
			} `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// BuildQuery embeds the raw search text in the GraphQL document.
func (p *AniListProvider) BuildQuery(query string) string {
	return fmt.Sprintf(anilistQuery, p.limit, quoteEscaper.Replace(query))
}

func (p *AniListProvider) Search(ctx context.Context, query string) ([]models.Candidate, error) {
	body, err := json.Marshal(map[string]string{"query": p.BuildQuery(query)})
	if err != nil {
		return nil, fmt.Errorf("encode anilist query: %w", err)
	}

	var resp anilistResponse
	err = p.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			messages = append(messages, e.Message)
		}
		return nil, errors.New("anilist: " + strings.Join(messages, "; "))
	}

	media := resp.Data.Page.Media
	candidates := make([]models.Candidate, 0, len(media))
	for _, m := range media {
		c := models.Candidate{
			ID:    m.ID,
			Name:  firstNonEmpty(m.Title.UserPreferred, m.Title.Romaji, m.Title.English, "Untitled"),
			Image: m.CoverImage.Large,
		}
		if m.StartDate.Year != nil {
			c.ReleasedYear = *m.StartDate.Year
		}
		if m.AverageScore != nil {
			c.Rating = *m.AverageScore / 10
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
