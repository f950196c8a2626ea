package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"newsdesk/app/cfg"
	"newsdesk/app/database"
	"newsdesk/app/parser"
	"newsdesk/app/policy"
	"newsdesk/app/scoring"
)

// Runner orchestrates one organic ingestion cycle: select a fair rotation
// of sources, fetch and score them through a bounded worker pool under a
// wall-clock budget, admit at most one candidate per section, backfill
// starved sections from the fallback pool, then prune.
type Runner struct {
	cfg      *cfg.Cfg
	policies policy.Table

	sources database.SourceRepository
	items   database.ItemRepository
	runs    database.RunRepository

	parser   *parser.Parser
	fetcher  *Fetcher
	fallback *FallbackProvider
	pruner   *Pruner
	weights  scoring.Weights

	publisher AdmissionPublisher // optional

	busy sync.Mutex
	now  func() time.Time
}

func NewRunner(c *cfg.Cfg, policies policy.Table,
	sources database.SourceRepository, items database.ItemRepository, runs database.RunRepository,
	feedParser *parser.Parser, fetcher *Fetcher, fallback *FallbackProvider, pruner *Pruner,
	publisher AdmissionPublisher) *Runner {
	return &Runner{
		cfg:       c,
		policies:  policies,
		sources:   sources,
		items:     items,
		runs:      runs,
		parser:    feedParser,
		fetcher:   fetcher,
		fallback:  fallback,
		pruner:    pruner,
		weights:   scoring.DefaultWeights(),
		publisher: publisher,
		now:       time.Now,
	}
}

// runState accumulates candidate pools and diagnostics across workers.
type runState struct {
	mu    sync.Mutex
	pools map[string][]scoredCandidate

	added   int
	skipped int
	stats   Stats
}

func (s *runState) addCandidate(section string, c scoredCandidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[section] = append(s.pools[section], c)
	s.stats.Candidates++
}

// Run executes one ingestion cycle. Only one may run at a time.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.busy.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.busy.Unlock()

	start := r.now()
	budget := r.cfg.ClampedBudget()
	margin := r.cfg.Margin()
	deadline := start.Add(budget)

	state := &runState{pools: make(map[string][]scoredCandidate)}

	runID, err := r.runs.Create(ctx, database.RunKindIngest)
	if err != nil {
		// The audit record is best effort; losing it must not block the run.
		slog.Error("Failed to create run record", "error", err)
	}

	slog.Info("Ingest run starting",
		"budget", budget, "margin", margin,
		"concurrency", r.cfg.FetchConcurrency, "max_sources", r.cfg.MaxSourcesPerRun)

	if r.cfg.DisableFailingSources {
		n, err := r.sources.ReEnableAutoDisabled(ctx, start.Add(-r.cfg.ReEnableAfter))
		if err != nil {
			slog.Error("Re-enable sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("Re-enabled auto-disabled sources", "count", n)
			state.stats.SourcesReEnabled = n
		}
	}

	// Inability to read the source registry is the one fatal condition.
	pool, err := r.sources.ListEnabled(ctx, database.SourceTypeRSS)
	if err != nil {
		msg := fmt.Sprintf("source registry read failed: %v", err)
		r.finish(ctx, runID, false, state, msg)
		state.stats.DurationMs = time.Since(start).Milliseconds()
		return &Result{OK: false, Stats: state.stats}, fmt.Errorf("list sources: %w", err)
	}

	tracker := NewTracker(r.items, r.policies, r.cfg.NoRepeatWindow, r.cfg.SourceCooldown)
	tracker.Load(ctx)

	selected := SelectRotation(pool, r.policies, r.cfg.MaxSourcesPerRun)
	state.stats.SourcesSelected = len(selected)

	r.fetchAll(ctx, selected, tracker, state, deadline, margin)

	r.admitPools(ctx, tracker, state)

	r.runFallback(ctx, tracker, state, deadline, margin)

	r.prune(ctx, state)

	state.stats.DurationMs = time.Since(start).Milliseconds()
	r.finish(ctx, runID, true, state, "")

	slog.Info("Ingest run finished",
		"added", state.added, "skipped", state.skipped,
		"sources_fetched", state.stats.SourcesFetched,
		"fetch_errors", state.stats.FetchErrors,
		"stopped_early", state.stats.StoppedEarly,
		"duration_ms", state.stats.DurationMs)

	return &Result{OK: true, Added: state.added, Skipped: state.skipped, Stats: state.stats}, nil
}

// fetchAll fans the selected sources out to a bounded worker pool. Workers
// observe the deadline cooperatively: once the remaining budget drops below
// the safety margin they stop processing new sources. In-flight requests
// are only bounded by their own request timeout.
func (r *Runner) fetchAll(ctx context.Context, selected []database.Source,
	tracker *Tracker, state *runState, deadline time.Time, margin time.Duration) {

	jobs := make(chan database.Source)
	var wg sync.WaitGroup

	workers := r.cfg.FetchConcurrency
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				if time.Until(deadline) < margin {
					state.mu.Lock()
					state.stats.StoppedEarly = true
					state.skipped++
					state.mu.Unlock()
					continue
				}
				r.processSource(ctx, src, tracker, state)
			}
		}()
	}

	for _, src := range selected {
		jobs <- src
	}
	close(jobs)
	wg.Wait()
}

// processSource fetches, parses and scores one source. Every failure is
// local: the source is skipped and the run continues.
func (r *Runner) processSource(ctx context.Context, src database.Source,
	tracker *Tracker, state *runState) {

	section := policy.NormalizeSection(src.Section)
	pol := r.policies.Get(section)
	if pol == nil {
		return
	}

	data, err := r.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		slog.Warn("Source fetch failed", "source", src.Name, "url", src.URL, "error", err)
		r.markAttempt(ctx, src, false)
		state.mu.Lock()
		state.stats.FetchErrors++
		state.skipped++
		state.mu.Unlock()
		return
	}

	candidates, err := r.parser.Parse(data)
	if err != nil {
		slog.Warn("Source feed malformed", "source", src.Name, "url", src.URL, "error", err)
		r.markAttempt(ctx, src, false)
		state.mu.Lock()
		state.stats.ParseErrors++
		state.skipped++
		state.mu.Unlock()
		return
	}

	r.markAttempt(ctx, src, true)

	onCooldown := tracker.SourceOnCooldown(section, src.ID)
	now := r.now()

	for _, c := range candidates {
		score := r.weights.Score(scoring.Input{
			Title:      c.Title,
			Snippet:    c.Snippet,
			TrustScore: src.TrustScore,
			Age:        now.Sub(c.PublishedAt),
			HalfLife:   time.Duration(pol.HalfLifeHours * float64(time.Hour)),
			Boosts:     pol.KeywordBoosts,
			OnCooldown: onCooldown,
		})

		state.addCandidate(section, scoredCandidate{
			Candidate: c,
			sourceID:  src.ID,
			country:   src.Country,
			score:     score,
		})
	}

	state.mu.Lock()
	state.stats.SourcesFetched++
	state.mu.Unlock()
}

// markAttempt records the attempt and applies the optional auto-disable
// policy once the failure counter crosses the threshold.
func (r *Runner) markAttempt(ctx context.Context, src database.Source, ok bool) {
	fails, err := r.sources.MarkAttempt(ctx, src.ID, ok)
	if err != nil {
		slog.Error("Failed to record fetch attempt", "source", src.Name, "error", err)
		return
	}

	if !ok && r.cfg.DisableFailingSources && fails >= r.cfg.DisableThreshold {
		if err := r.sources.SetEnabled(ctx, src.ID, false, true); err != nil {
			slog.Error("Failed to auto-disable source", "source", src.Name, "error", err)
			return
		}
		slog.Warn("Source auto-disabled after repeated failures",
			"source", src.Name, "url", src.URL, "consecutive_fails", fails)
	}
}

// admitPools runs the per-section admission pass over the pooled, ranked
// candidates. Single goroutine; the tracker still serializes internally.
func (r *Runner) admitPools(ctx context.Context, tracker *Tracker, state *runState) {
	sections := make([]string, 0, len(state.pools))
	for section := range state.pools {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	for _, section := range sections {
		pool := state.pools[section]
		rankPool(pool)
		r.admitRanked(ctx, tracker, state, section, pool, false)
	}
}

// rankPool orders candidates by score descending, breaking ties in favor of
// the later publication.
func rankPool(pool []scoredCandidate) {
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return pool[i].PublishedAt.After(pool[j].PublishedAt)
	})
}

// admitRanked walks a ranked pool and admits the first acceptable
// candidate. URL repeats are passed over; a cap decision ends the section
// since counts cannot free up mid-run.
func (r *Runner) admitRanked(ctx context.Context, tracker *Tracker, state *runState,
	section string, pool []scoredCandidate, refreshCreatedAt bool) {

	for _, sc := range pool {
		item := &database.Item{
			SourceID:    sc.sourceID,
			URL:         sc.URL,
			Section:     section,
			Title:       sc.Title,
			Summary:     sc.Snippet,
			Country:     sc.country,
			Topics:      policy.MapTopics(sc.Categories),
			Score:       sc.score,
			PublishedAt: sc.PublishedAt,
		}

		decision, isNew, err := tracker.Admit(ctx, item, refreshCreatedAt)
		if err != nil {
			slog.Error("Admission persistence failure", "section", section, "url", sc.URL, "error", err)
			state.mu.Lock()
			state.skipped++
			state.mu.Unlock()
			continue
		}

		switch decision {
		case DecisionAdmitted:
			state.mu.Lock()
			state.added++
			state.mu.Unlock()
			slog.Info("Candidate admitted", "section", section, "url", sc.URL, "score", sc.score)
			r.publishAdmitted(ctx, item, isNew)
			return
		case DecisionRepeat:
			state.mu.Lock()
			state.skipped++
			state.mu.Unlock()
			continue
		default:
			state.mu.Lock()
			state.skipped++
			state.mu.Unlock()
			return
		}
	}
}

func (r *Runner) publishAdmitted(ctx context.Context, item *database.Item, isNew bool) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishAdmitted(ctx, item, isNew); err != nil {
		slog.Error("Failed to publish admitted item", "url", item.URL, "error", err)
	}
}

// runFallback backfills sections whose trailing-month count is zero. The
// whole phase is skipped near the deadline so it can never cause a timeout.
func (r *Runner) runFallback(ctx context.Context, tracker *Tracker, state *runState,
	deadline time.Time, margin time.Duration) {

	if r.fallback == nil || !r.fallback.Configured() {
		return
	}

	sections := make([]string, 0, len(r.policies))
	for section := range r.policies {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	for _, section := range sections {
		if time.Until(deadline) < margin {
			slog.Info("Skipping fallback pool, deadline too close", "section", section)
			return
		}

		if tracker.MonthCount(section) > 0 {
			continue
		}

		candidates, sourceID, err := r.fallback.FetchPool(ctx, section)
		if err != nil {
			slog.Warn("Fallback pool query failed", "section", section, "error", err)
			state.mu.Lock()
			state.stats.FetchErrors++
			state.mu.Unlock()
			continue
		}

		pool := make([]scoredCandidate, 0, len(candidates))
		for _, c := range candidates {
			pool = append(pool, scoredCandidate{
				Candidate: c,
				sourceID:  sourceID,
				score:     FallbackScore,
			})
		}
		rankPool(pool)

		before := state.added
		r.admitRanked(ctx, tracker, state, section, pool, false)
		if state.added > before {
			state.stats.FallbackUsed++
			slog.Info("Fallback pool admitted an item", "section", section)
		}
	}
}

// prune enforces caps and retention for every section, then the global
// retention sweep.
func (r *Runner) prune(ctx context.Context, state *runState) {
	for section := range r.policies {
		n, err := r.pruner.PruneSection(ctx, section)
		if err != nil {
			slog.Error("Section prune failed", "section", section, "error", err)
		}
		state.stats.Pruned += n
	}

	n, err := r.pruner.GlobalSweep(ctx)
	if err != nil {
		slog.Error("Global retention sweep failed", "error", err)
	}
	state.stats.Pruned += n
}

func (r *Runner) finish(ctx context.Context, runID string, ok bool, state *runState, message string) {
	if runID == "" {
		return
	}
	if err := r.runs.Finish(ctx, runID, ok, state.added, state.skipped, message); err != nil {
		slog.Error("Failed to finalize run record", "run_id", runID, "error", err)
	}
}
