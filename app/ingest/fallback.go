package ingest

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"newsdesk/app/database"
	"newsdesk/app/parser"
)

// FallbackScore is the fixed score assigned to fallback pool items; they
// bypass the per-source scoring pipeline.
const FallbackScore = 0.40

// FallbackTrustScore is the trust assigned to the synthetic fallback source.
const FallbackTrustScore = 40

// FallbackProvider queries public aggregators for sections that have gone a
// whole month without an admission. Emergency path only.
type FallbackProvider struct {
	client       *resty.Client
	parser       *parser.Parser
	sources      database.SourceRepository
	primaryURL   string
	secondaryURL string
}

func NewFallbackProvider(sources database.SourceRepository, feedParser *parser.Parser,
	primaryURL, secondaryURL string, timeout time.Duration, userAgent string) *FallbackProvider {
	return &FallbackProvider{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
		parser:       feedParser,
		sources:      sources,
		primaryURL:   primaryURL,
		secondaryURL: secondaryURL,
	}
}

// Configured reports whether at least the primary aggregator is set up.
func (f *FallbackProvider) Configured() bool {
	return f.primaryURL != ""
}

// FetchPool queries the primary aggregator for the section, then the
// secondary if the primary returns nothing. Returns the candidates and the
// id of the synthetic fallback source that owns them.
func (f *FallbackProvider) FetchPool(ctx context.Context, section string) ([]parser.Candidate, string, error) {
	sourceID, err := f.sources.Upsert(ctx, &database.Source{
		URL:        "fallback://" + section,
		Section:    section,
		Name:       "Fallback pool (" + section + ")",
		Type:       database.SourceTypeFallback,
		TrustScore: FallbackTrustScore,
		Enabled:    true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("register fallback source: %w", err)
	}

	candidates, err := f.query(ctx, f.primaryURL, section)
	if err == nil && len(candidates) > 0 {
		return candidates, sourceID, nil
	}

	if f.secondaryURL == "" {
		return candidates, sourceID, err
	}

	candidates, err = f.query(ctx, f.secondaryURL, section)
	return candidates, sourceID, err
}

func (f *FallbackProvider) query(ctx context.Context, template, section string) ([]parser.Candidate, error) {
	endpoint := fmt.Sprintf(template, url.QueryEscape(section))

	resp, err := f.client.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		return nil, &FetchError{URL: endpoint, Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &FetchError{URL: endpoint, StatusCode: resp.StatusCode()}
	}

	return f.parser.Parse(resp.Body())
}
