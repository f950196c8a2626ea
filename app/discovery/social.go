package discovery

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"newsdesk/app/policy"
)

// Social post thresholds.
const (
	socialMinScore = 25
	socialMaxAge   = 48 * time.Hour
)

// SocialProvider pulls short-form posts from a JSON feed endpoint. The
// feed URL is a template with a single %s placeholder for the query, so
// deployments can point it at whichever aggregator they run.
type SocialProvider struct {
	client  *resty.Client
	feedURL string
	now     func() time.Time
}

func NewSocialProvider(feedURL string, timeout time.Duration) *SocialProvider {
	return &SocialProvider{
		client:  resty.New().SetTimeout(timeout),
		feedURL: feedURL,
		now:     time.Now,
	}
}

func (p *SocialProvider) Name() string {
	return ProviderSocial
}

type socialFeedResponse struct {
	Posts []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		Excerpt   string `json:"excerpt"`
		Score     int    `json:"score"`
		Pinned    bool   `json:"pinned"`
		Sensitive bool   `json:"sensitive"`
		CreatedAt int64  `json:"created_at"`
	} `json:"posts"`
}

// Fetch queries the configured feed and keeps recent posts above the score
// floor. Pinned and sensitive posts are dropped.
func (p *SocialProvider) Fetch(ctx context.Context, q policy.DiscoveryQuery) ([]Candidate, error) {
	if p.feedURL == "" || q.SocialQuery == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf(p.feedURL, url.QueryEscape(q.SocialQuery))

	var feed socialFeedResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&feed).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("social feed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("social feed: HTTP %d", resp.StatusCode())
	}

	now := p.now()
	cutoff := now.Add(-socialMaxAge)

	var candidates []Candidate
	for _, post := range feed.Posts {
		if post.URL == "" || post.Title == "" {
			continue
		}
		if post.Pinned || post.Sensitive || post.Score < socialMinScore {
			continue
		}

		publishedAt := time.Unix(post.CreatedAt, 0).UTC()
		if post.CreatedAt == 0 {
			publishedAt = now
		}
		if publishedAt.Before(cutoff) {
			continue
		}

		candidates = append(candidates, Candidate{
			Title:       post.Title,
			URL:         post.URL,
			Snippet:     post.Excerpt,
			PublishedAt: publishedAt,
			Provider:    ProviderSocial,
			Trust:       SocialTrustScore,
		})
	}

	return candidates, nil
}
