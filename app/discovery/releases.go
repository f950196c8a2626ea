package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"newsdesk/app/parser"
	"newsdesk/app/policy"
)

// releasesMaxAge drops stale releases; a two-week-old release is no longer
// discovery material.
const releasesMaxAge = 14 * 24 * time.Hour

// prereleaseMarkers exclude non-final releases.
var prereleaseMarkers = []string{"alpha", "beta", "rc", "nightly", "preview", "pre-release"}

// ReleasesProvider reads code-hosting release Atom feeds for the section's
// configured repositories.
type ReleasesProvider struct {
	client  *resty.Client
	parser  *parser.Parser
	baseURL string
	now     func() time.Time
}

func NewReleasesProvider(timeout time.Duration, userAgent string) *ReleasesProvider {
	return &ReleasesProvider{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
		parser:  parser.NewParser(),
		baseURL: "https://github.com/%s/releases.atom",
		now:     time.Now,
	}
}

func (p *ReleasesProvider) Name() string {
	return ProviderReleases
}

// Fetch queries the release feed of every configured repository. A failing
// repository is logged and skipped; the provider only errors when every
// repository fails.
func (p *ReleasesProvider) Fetch(ctx context.Context, q policy.DiscoveryQuery) ([]Candidate, error) {
	if len(q.GitHubRepos) == 0 {
		return nil, nil
	}

	var candidates []Candidate
	var lastErr error
	failed := 0

	for _, repo := range q.GitHubRepos {
		repoCandidates, err := p.fetchRepo(ctx, repo)
		if err != nil {
			slog.Warn("Release feed query failed", "repo", repo, "error", err)
			failed++
			lastErr = err
			continue
		}
		candidates = append(candidates, repoCandidates...)
	}

	if failed == len(q.GitHubRepos) {
		return nil, fmt.Errorf("all release feeds failed: %w", lastErr)
	}

	return candidates, nil
}

func (p *ReleasesProvider) fetchRepo(ctx context.Context, repo string) ([]Candidate, error) {
	endpoint := fmt.Sprintf(p.baseURL, repo)

	resp, err := p.client.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", endpoint, resp.StatusCode())
	}

	parsed, err := p.parser.Parse(resp.Body())
	if err != nil {
		return nil, err
	}

	cutoff := p.now().Add(-releasesMaxAge)
	var candidates []Candidate

	for _, c := range parsed {
		if c.PublishedAt.Before(cutoff) {
			continue
		}
		if isPrerelease(c.Title) {
			continue
		}

		candidates = append(candidates, Candidate{
			Title:       repo + " " + c.Title,
			URL:         c.URL,
			Snippet:     c.Snippet,
			PublishedAt: c.PublishedAt,
			Provider:    ProviderReleases,
			Trust:       ReleasesTrustScore,
		})
	}

	return candidates, nil
}

func isPrerelease(title string) bool {
	t := strings.ToLower(title)
	for _, marker := range prereleaseMarkers {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}
