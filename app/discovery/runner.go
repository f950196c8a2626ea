package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"newsdesk/app/cfg"
	"newsdesk/app/database"
	"newsdesk/app/ingest"
	"newsdesk/app/policy"
	"newsdesk/app/scoring"
)

// Runner orchestrates one discovery cycle: for each section whose
// discovery interval elapsed, query the configured providers concurrently,
// merge and dedup the candidates, score them with the shared model and
// admit up to PerRunCap items per section with at most one candidate per
// provider, then prune the discovery windows.
type Runner struct {
	cfg      *cfg.Cfg
	policies policy.Table

	sources database.SourceRepository
	items   database.ItemRepository
	runs    database.RunRepository

	providers []Provider
	weights   scoring.Weights

	publisher ingest.AdmissionPublisher // optional

	busy sync.Mutex
	now  func() time.Time
}

func NewRunner(c *cfg.Cfg, policies policy.Table,
	sources database.SourceRepository, items database.ItemRepository, runs database.RunRepository,
	providers []Provider, publisher ingest.AdmissionPublisher) *Runner {
	return &Runner{
		cfg:       c,
		policies:  policies,
		sources:   sources,
		items:     items,
		runs:      runs,
		providers: providers,
		weights:   scoring.DefaultWeights(),
		publisher: publisher,
		now:       time.Now,
	}
}

// scored pairs a deduplicated candidate with its composite score.
type scored struct {
	Candidate
	score float64
}

// Run executes one discovery cycle. Only one may run at a time.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.busy.TryLock() {
		return nil, ingest.ErrRunInProgress
	}
	defer r.busy.Unlock()

	start := r.now()

	runID, err := r.runs.Create(ctx, database.RunKindDiscovery)
	if err != nil {
		slog.Error("Failed to create run record", "error", err)
	}

	var (
		added   int
		skipped int
		stats   Stats
	)

	sections := make([]string, 0, len(r.policies))
	for section, pol := range r.policies {
		if pol.Discovery.HasDiscovery() {
			sections = append(sections, section)
		}
	}
	sort.Strings(sections)

	slog.Info("Discovery run starting",
		"sections", len(sections), "interval", r.cfg.DiscoveryInterval)

	for _, section := range sections {
		pol := r.policies.Get(section)

		sourceID, due, err := r.dueSection(ctx, section, start)
		if err != nil {
			slog.Error("Discovery due check failed", "section", section, "error", err)
			continue
		}
		if !due {
			continue
		}
		stats.SectionsDue++

		a, s := r.runSection(ctx, section, sourceID, pol, &stats)
		added += a
		skipped += s
	}

	stats.Pruned = r.prune(ctx, sections)

	stats.DurationMs = time.Since(start).Milliseconds()
	r.finish(ctx, runID, added, skipped)

	slog.Info("Discovery run finished",
		"sections_due", stats.SectionsDue, "added", added, "skipped", skipped,
		"provider_errors", stats.ProviderErrors, "duration_ms", stats.DurationMs)

	return &Result{OK: true, Added: added, Skipped: skipped, Stats: stats}, nil
}

// dueSection checks the section's synthetic clock source against the
// discovery interval and registers the source on first use. The source's
// last_fetched_at is the last discovery attempt for the section.
func (r *Runner) dueSection(ctx context.Context, section string, now time.Time) (string, bool, error) {
	clockURL := "discovery://" + section

	src, err := r.sources.GetByURL(ctx, clockURL)
	if err != nil {
		return "", false, fmt.Errorf("lookup clock source: %w", err)
	}
	if src != nil && src.LastFetchedAt != nil &&
		now.Sub(*src.LastFetchedAt) < r.cfg.DiscoveryInterval {
		return src.ID, false, nil
	}

	sourceID, err := r.sources.Upsert(ctx, &database.Source{
		URL:     clockURL,
		Section: section,
		Name:    "Discovery (" + section + ")",
		Type:    database.SourceTypeDiscovery,
		Enabled: true,
	})
	if err != nil {
		return "", false, fmt.Errorf("register clock source: %w", err)
	}

	return sourceID, true, nil
}

// runSection queries all providers for one section and admits the winners.
// Returns (added, skipped).
func (r *Runner) runSection(ctx context.Context, section, sourceID string,
	pol *policy.SectionPolicy, stats *Stats) (int, int) {

	candidates, errs := r.queryProviders(ctx, pol.Discovery, stats)

	// The attempt is recorded even when every provider fails, so the
	// section is not retried before the next interval elapses.
	if _, err := r.sources.MarkAttempt(ctx, sourceID, errs == 0); err != nil {
		slog.Error("Failed to record discovery attempt", "section", section, "error", err)
	}

	if len(candidates) == 0 {
		return 0, 0
	}

	candidates, dropped := dedup(candidates)
	stats.Deduped += dropped

	candidates, err := r.dropExisting(ctx, candidates)
	if err != nil {
		slog.Error("Existing-url check failed", "section", section, "error", err)
		return 0, 0
	}

	pool := r.score(candidates, pol)

	return r.admit(ctx, section, sourceID, pol, pool)
}

// queryProviders fans the section's query out to every provider
// concurrently and merges the results.
func (r *Runner) queryProviders(ctx context.Context, q policy.DiscoveryQuery, stats *Stats) ([]Candidate, int) {
	var (
		mu     sync.Mutex
		merged []Candidate
		errs   int
		wg     sync.WaitGroup
	)

	for _, p := range r.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()

			got, err := p.Fetch(ctx, q)
			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				slog.Warn("Discovery provider failed", "provider", p.Name(), "error", err)
				errs++
				return
			}
			merged = append(merged, got...)
		}(p)
	}
	wg.Wait()

	stats.ProvidersQueried += len(r.providers)
	stats.ProviderErrors += errs
	stats.Candidates += len(merged)

	return merged, errs
}

// dropExisting removes candidates whose url is already stored, organic or
// discovered alike.
func (r *Runner) dropExisting(ctx context.Context, candidates []Candidate) ([]Candidate, error) {
	urls := make([]string, len(candidates))
	for i, c := range candidates {
		urls[i] = c.URL
	}

	existing, err := r.items.ExistingURLs(ctx, urls)
	if err != nil {
		return nil, err
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if !existing[c.URL] {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// score runs the shared composite model over the pool. The provider's base
// trust substitutes for source trust and no cooldown penalty applies;
// provider diversity is enforced at admission instead.
func (r *Runner) score(candidates []Candidate, pol *policy.SectionPolicy) []scored {
	now := r.now()

	pool := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		pool = append(pool, scored{
			Candidate: c,
			score: r.weights.Score(scoring.Input{
				Title:      c.Title,
				Snippet:    c.Snippet,
				TrustScore: c.Trust,
				Age:        now.Sub(c.PublishedAt),
				HalfLife:   time.Duration(pol.HalfLifeHours * float64(time.Hour)),
				Boosts:     pol.KeywordBoosts,
			}),
		})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return pool[i].PublishedAt.After(pool[j].PublishedAt)
	})

	return pool
}

// admit walks the ranked pool under the discovery bounds: per-run and
// window caps count discovered items only, and each provider wins at most
// once per section per run. Admitted items get a fresh created_at so they
// stay visible under the collection-time windows. Returns (added, skipped).
func (r *Runner) admit(ctx context.Context, section, sourceID string, pol *policy.SectionPolicy, pool []scored) (int, int) {
	now := r.now()

	day, err := r.items.CountSince(ctx, section, policy.WindowFieldCreated,
		now.Add(-24*time.Hour), database.SourceTypeDiscovery)
	if err != nil {
		slog.Error("Discovery day count failed", "section", section, "error", err)
		return 0, 0
	}
	week, err := r.items.CountSince(ctx, section, policy.WindowFieldCreated,
		now.Add(-7*24*time.Hour), database.SourceTypeDiscovery)
	if err != nil {
		slog.Error("Discovery week count failed", "section", section, "error", err)
		return 0, 0
	}

	// Discovered items still count against the section's own daily
	// quota, so a busy section cannot be pushed over its budget.
	sectionDay, err := r.items.CountSince(ctx, section, policy.WindowField(section),
		now.Add(-24*time.Hour), "")
	if err != nil {
		slog.Error("Discovery section count failed", "section", section, "error", err)
		return 0, 0
	}

	var added, skipped int
	providerUsed := make(map[string]bool, len(r.providers))

	for _, sc := range pool {
		if added >= PerRunCap || day >= DailyCap || week >= WeeklyCap || sectionDay >= pol.Caps.Daily {
			skipped++
			continue
		}
		if providerUsed[sc.Provider] {
			skipped++
			continue
		}

		item := &database.Item{
			SourceID:    sourceID,
			URL:         sc.URL,
			Section:     section,
			Title:       sc.Title,
			Summary:     sc.Snippet,
			Topics:      []string{sc.Provider},
			Score:       sc.score,
			PublishedAt: sc.PublishedAt,
		}

		isNew, err := r.items.Upsert(ctx, item, true)
		if err != nil {
			slog.Error("Discovery admission failed", "section", section, "url", sc.URL, "error", err)
			skipped++
			continue
		}

		added++
		day++
		week++
		sectionDay++
		providerUsed[sc.Provider] = true
		slog.Info("Discovery candidate admitted",
			"section", section, "provider", sc.Provider, "url", sc.URL, "score", sc.score)

		r.publishAdmitted(ctx, item, isNew)
	}

	return added, skipped
}

func (r *Runner) publishAdmitted(ctx context.Context, item *database.Item, isNew bool) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishAdmitted(ctx, item, isNew); err != nil {
		slog.Error("Failed to publish admitted item", "url", item.URL, "error", err)
	}
}

// prune enforces the discovery caps and retention over discovered items
// only; organic items in the same sections are untouched.
func (r *Runner) prune(ctx context.Context, sections []string) int64 {
	now := r.now()
	var pruned int64

	for _, section := range sections {
		n, err := r.items.PruneWindow(ctx, section, policy.WindowFieldCreated,
			now.Add(-24*time.Hour), DailyCap, database.SourceTypeDiscovery)
		if err != nil {
			slog.Error("Discovery day prune failed", "section", section, "error", err)
		}
		pruned += n

		n, err = r.items.PruneWindow(ctx, section, policy.WindowFieldCreated,
			now.Add(-7*24*time.Hour), WeeklyCap, database.SourceTypeDiscovery)
		if err != nil {
			slog.Error("Discovery week prune failed", "section", section, "error", err)
		}
		pruned += n

		n, err = r.items.DeleteStale(ctx, section, policy.WindowFieldCreated,
			now.Add(-time.Duration(RetentionDays)*24*time.Hour), database.SourceTypeDiscovery)
		if err != nil {
			slog.Error("Discovery retention failed", "section", section, "error", err)
		}
		pruned += n
	}

	return pruned
}

func (r *Runner) finish(ctx context.Context, runID string, added, skipped int) {
	if runID == "" {
		return
	}
	if err := r.runs.Finish(ctx, runID, true, added, skipped, ""); err != nil {
		slog.Error("Failed to finalize run record", "run_id", runID, "error", err)
	}
}
