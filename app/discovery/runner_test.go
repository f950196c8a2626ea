package discovery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/app/cfg"
	"newsdesk/app/database"
	"newsdesk/app/policy"
)

// fakeProvider returns canned candidates for every query.
type fakeProvider struct {
	name       string
	candidates []Candidate
	err        error
	calls      int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, q policy.DiscoveryQuery) ([]Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

func fakeCandidate(provider, url string, trust int) Candidate {
	return Candidate{
		Title:       "Candidate " + url,
		URL:         url,
		Snippet:     "snippet",
		PublishedAt: time.Now().Add(-time.Hour),
		Provider:    provider,
		Trust:       trust,
	}
}

// stubSourceRepo covers the calls the discovery runner makes.
type stubSourceRepo struct {
	mu      sync.Mutex
	sources map[string]*database.Source
	nextID  int
}

func newStubSourceRepo() *stubSourceRepo {
	return &stubSourceRepo{sources: make(map[string]*database.Source)}
}

func (s *stubSourceRepo) ListEnabled(ctx context.Context, sourceType string) ([]database.Source, error) {
	return nil, nil
}

func (s *stubSourceRepo) GetByURL(ctx context.Context, url string) (*database.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[url]
	if !ok {
		return nil, nil
	}
	copied := *src
	return &copied, nil
}

func (s *stubSourceRepo) Upsert(ctx context.Context, src *database.Source) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sources[src.URL]; ok {
		return existing.ID, nil
	}
	s.nextID++
	src.ID = fmt.Sprintf("src-%d", s.nextID)
	stored := *src
	s.sources[src.URL] = &stored
	return src.ID, nil
}

func (s *stubSourceRepo) MarkAttempt(ctx context.Context, id string, ok bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if src.ID == id {
			now := time.Now()
			src.LastFetchedAt = &now
			if ok {
				src.ConsecutiveFails = 0
			} else {
				src.ConsecutiveFails++
			}
			return src.ConsecutiveFails, nil
		}
	}
	return 0, fmt.Errorf("source %s not found", id)
}

func (s *stubSourceRepo) SetEnabled(ctx context.Context, id string, enabled, autoDisabled bool) error {
	return nil
}

func (s *stubSourceRepo) ReEnableAutoDisabled(ctx context.Context, notAttemptedSince time.Time) (int64, error) {
	return 0, nil
}

// stubItemRepo covers the calls the discovery runner makes.
type stubItemRepo struct {
	mu          sync.Mutex
	items       map[string]*database.Item
	dayHint     int // returned for discovery-scoped counts when set
	sectionHint int // returned for unscoped section counts when set
}

func newStubItemRepo() *stubItemRepo {
	return &stubItemRepo{items: make(map[string]*database.Item)}
}

func (s *stubItemRepo) Upsert(ctx context.Context, item *database.Item, refreshCreatedAt bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.items[item.URL]
	stored := *item
	stored.CreatedAt = time.Now()
	s.items[item.URL] = &stored
	return !exists, nil
}

func (s *stubItemRepo) CountSince(ctx context.Context, section, windowField string, since time.Time, sourceType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sourceType == database.SourceTypeDiscovery {
		return s.dayHint, nil
	}
	return s.sectionHint, nil
}

func (s *stubItemRepo) RecentURLs(ctx context.Context, section string, since time.Time) ([]string, error) {
	return nil, nil
}

func (s *stubItemRepo) RecentSourceIDs(ctx context.Context, section string, since time.Time) ([]string, error) {
	return nil, nil
}

func (s *stubItemRepo) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[string]bool)
	for _, u := range urls {
		if _, ok := s.items[u]; ok {
			existing[u] = true
		}
	}
	return existing, nil
}

func (s *stubItemRepo) PruneWindow(ctx context.Context, section, windowField string, since time.Time, keep int, sourceType string) (int64, error) {
	return 0, nil
}

func (s *stubItemRepo) DeleteStale(ctx context.Context, section, windowField string, before time.Time, sourceType string) (int64, error) {
	return 0, nil
}

func (s *stubItemRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type stubRunRepo struct{}

func (stubRunRepo) Create(ctx context.Context, kind string) (string, error) { return "run-1", nil }
func (stubRunRepo) Finish(ctx context.Context, id string, ok bool, added, skipped int, message string) error {
	return nil
}

func discoveryPolicies() policy.Table {
	return policy.Table{
		"tech": &policy.SectionPolicy{
			Section:       "tech",
			Caps:          policy.Caps{PerRun: 1, Daily: 6, Weekly: 30, Monthly: 90},
			HalfLifeHours: 48,
			Discovery: policy.DiscoveryQuery{
				GitHubRepos:  []string{"acme/widget"},
				YouTubeQuery: "tech talks",
			},
		},
		"sports": &policy.SectionPolicy{
			Section:       "sports",
			Caps:          policy.Caps{PerRun: 1, Daily: 6, Weekly: 30, Monthly: 90},
			HalfLifeHours: 12,
		},
	}
}

func discoveryCfg() *cfg.Cfg {
	return &cfg.Cfg{DiscoveryInterval: 12 * time.Hour}
}

func TestDiscoveryRunAdmitsWithProviderDiversity(t *testing.T) {
	releases := &fakeProvider{name: ProviderReleases, candidates: []Candidate{
		fakeCandidate(ProviderReleases, "https://code.example/1", ReleasesTrustScore),
		fakeCandidate(ProviderReleases, "https://code.example/2", ReleasesTrustScore),
		fakeCandidate(ProviderReleases, "https://code.example/3", ReleasesTrustScore),
	}}
	video := &fakeProvider{name: ProviderVideo, candidates: []Candidate{
		fakeCandidate(ProviderVideo, "https://video.example/1", VideoTrustScore),
	}}

	items := newStubItemRepo()
	runner := NewRunner(discoveryCfg(), discoveryPolicies(), newStubSourceRepo(), items, stubRunRepo{},
		[]Provider{releases, video}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Stats.SectionsDue)

	// One winner per provider despite three release candidates.
	assert.Equal(t, 2, result.Added)
	assert.Len(t, items.items, 2)
	assert.Contains(t, items.items, "https://video.example/1")

	providers := make(map[string]int)
	for _, item := range items.items {
		require.Len(t, item.Topics, 1)
		providers[item.Topics[0]]++
	}
	assert.Equal(t, 1, providers[ProviderReleases])
	assert.Equal(t, 1, providers[ProviderVideo])
}

func TestDiscoveryRunOnlyDueSectionsQueried(t *testing.T) {
	releases := &fakeProvider{name: ProviderReleases, candidates: []Candidate{
		fakeCandidate(ProviderReleases, "https://code.example/1", ReleasesTrustScore),
	}}

	sources := newStubSourceRepo()
	runner := NewRunner(discoveryCfg(), discoveryPolicies(), sources, newStubItemRepo(), stubRunRepo{},
		[]Provider{releases}, nil)

	// First run: the tech section is due, the sports section has no
	// discovery configuration at all.
	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.SectionsDue)
	assert.Equal(t, 1, releases.calls)

	// Second run inside the interval: nothing due, no provider queries.
	result, err = runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stats.SectionsDue)
	assert.Equal(t, 1, releases.calls)
}

func TestDiscoveryRunDropsExistingURLs(t *testing.T) {
	releases := &fakeProvider{name: ProviderReleases, candidates: []Candidate{
		fakeCandidate(ProviderReleases, "https://code.example/known", ReleasesTrustScore),
	}}

	items := newStubItemRepo()
	items.items["https://code.example/known"] = &database.Item{URL: "https://code.example/known"}

	runner := NewRunner(discoveryCfg(), discoveryPolicies(), newStubSourceRepo(), items, stubRunRepo{},
		[]Provider{releases}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
}

func TestDiscoveryRunRespectsDailyCap(t *testing.T) {
	releases := &fakeProvider{name: ProviderReleases, candidates: []Candidate{
		fakeCandidate(ProviderReleases, "https://code.example/1", ReleasesTrustScore),
	}}

	items := newStubItemRepo()
	items.dayHint = DailyCap

	runner := NewRunner(discoveryCfg(), discoveryPolicies(), newStubSourceRepo(), items, stubRunRepo{},
		[]Provider{releases}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 1, result.Skipped)
}

func TestDiscoveryRunRespectsSectionQuota(t *testing.T) {
	releases := &fakeProvider{name: ProviderReleases, candidates: []Candidate{
		fakeCandidate(ProviderReleases, "https://code.example/1", ReleasesTrustScore),
	}}

	// The section's own daily quota is already exhausted by organic
	// items even though the discovery windows are empty.
	items := newStubItemRepo()
	items.sectionHint = discoveryPolicies()["tech"].Caps.Daily

	runner := NewRunner(discoveryCfg(), discoveryPolicies(), newStubSourceRepo(), items, stubRunRepo{},
		[]Provider{releases}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 1, result.Skipped)
}

func TestDiscoveryRunProviderFailureIsLocal(t *testing.T) {
	broken := &fakeProvider{name: ProviderVideo, err: fmt.Errorf("quota exceeded")}
	releases := &fakeProvider{name: ProviderReleases, candidates: []Candidate{
		fakeCandidate(ProviderReleases, "https://code.example/1", ReleasesTrustScore),
	}}

	runner := NewRunner(discoveryCfg(), discoveryPolicies(), newStubSourceRepo(), newStubItemRepo(), stubRunRepo{},
		[]Provider{broken, releases}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.ProviderErrors)
	assert.Equal(t, 1, result.Added)
}

func TestDiscoveryRunDedupsAcrossProviders(t *testing.T) {
	releases := &fakeProvider{name: ProviderReleases, candidates: []Candidate{
		fakeCandidate(ProviderReleases, "https://example.com/same", ReleasesTrustScore),
	}}
	video := &fakeProvider{name: ProviderVideo, candidates: []Candidate{
		fakeCandidate(ProviderVideo, "https://EXAMPLE.com/same", VideoTrustScore),
	}}

	runner := NewRunner(discoveryCfg(), discoveryPolicies(), newStubSourceRepo(), newStubItemRepo(), stubRunRepo{},
		[]Provider{releases, video}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Deduped)
	assert.Equal(t, 1, result.Added)
}
