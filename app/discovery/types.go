package discovery

import (
	"context"
	"time"

	"newsdesk/app/policy"
)

// Provider names double as the provider-diversity key: at most one
// candidate per provider wins each run.
const (
	ProviderReleases = "releases"
	ProviderVideo    = "video"
	ProviderSocial   = "social"
)

// Provider-specific base trust fed into the shared scoring model.
const (
	ReleasesTrustScore = 72
	VideoTrustScore    = 58
	SocialTrustScore   = 50
)

// Discovery admission bounds and retention, deliberately tighter than the
// organic RSS path.
const (
	PerRunCap     = 3
	DailyCap      = 3
	WeeklyCap     = 12
	RetentionDays = 7
)

// Provider gathers candidates for one section's discovery query.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q policy.DiscoveryQuery) ([]Candidate, error)
}

// Candidate is a provider result, pre-filtered by the provider's own
// quality rules.
type Candidate struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt time.Time
	Provider    string
	Trust       int
}

// Result is what the external trigger receives from one discovery run.
type Result struct {
	OK      bool  `json:"ok"`
	Added   int   `json:"added"`
	Skipped int   `json:"skipped"`
	Stats   Stats `json:"stats"`
}

// Stats are per-run diagnostics.
type Stats struct {
	SectionsDue      int   `json:"sections_due"`
	ProvidersQueried int   `json:"providers_queried"`
	ProviderErrors   int   `json:"provider_errors"`
	Candidates       int   `json:"candidates"`
	Deduped          int   `json:"deduped"`
	Pruned           int64 `json:"pruned"`
	DurationMs       int64 `json:"duration_ms"`
}
