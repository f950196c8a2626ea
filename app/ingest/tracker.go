package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsdesk/app/database"
	"newsdesk/app/policy"
)

// Admission decisions. Callers iterating a ranked pool keep trying on
// DecisionRepeat and stop on a cap decision: counts cannot free up within
// the same run.
type Decision int

const (
	DecisionAdmitted Decision = iota
	DecisionRepeat            // url admitted within the no-repeat window
	DecisionCapped            // a day/week/month window cap is reached
	DecisionPerRunCapped
	DecisionUnknownSection
)

func (d Decision) String() string {
	switch d {
	case DecisionAdmitted:
		return "admitted"
	case DecisionRepeat:
		return "url-repeat"
	case DecisionCapped:
		return "window-cap"
	case DecisionPerRunCapped:
		return "per-run-cap"
	default:
		return "unknown-section"
	}
}

// Tracker is the per-run admission coordinator. Counts and guard sets are
// recomputed from storage at run start, never carried over between runs, so
// a crashed or partial run cannot cause drift. All mutations happen under a
// single mutex: concurrent unsynchronized admissions would overshoot caps.
type Tracker struct {
	mu sync.Mutex

	items    database.ItemRepository
	policies policy.Table

	noRepeat time.Duration
	cooldown time.Duration

	now func() time.Time

	sections map[string]*sectionState
}

type sectionState struct {
	day, week, month int
	admittedThisRun  int
	recentURLs       map[string]struct{}
	recentSources    map[string]struct{}
}

func NewTracker(items database.ItemRepository, policies policy.Table,
	noRepeat, cooldown time.Duration) *Tracker {
	return &Tracker{
		items:    items,
		policies: policies,
		noRepeat: noRepeat,
		cooldown: cooldown,
		now:      time.Now,
		sections: make(map[string]*sectionState),
	}
}

// Load seeds window counts and guard sets for every section in the policy
// table. A section whose seed queries fail is left unseeded and admits
// nothing this run; proceeding with zero counts could overshoot caps.
func (t *Tracker) Load(ctx context.Context) {
	now := t.now()

	for section := range t.policies {
		st, err := t.loadSection(ctx, section, now)
		if err != nil {
			slog.Error("Failed to seed section window state, section excluded from run",
				"section", section, "error", err)
			continue
		}

		t.mu.Lock()
		t.sections[section] = st
		t.mu.Unlock()
	}
}

func (t *Tracker) loadSection(ctx context.Context, section string, now time.Time) (*sectionState, error) {
	wf := policy.WindowField(section)

	day, err := t.items.CountSince(ctx, section, wf, now.Add(-24*time.Hour), "")
	if err != nil {
		return nil, fmt.Errorf("day count: %w", err)
	}
	week, err := t.items.CountSince(ctx, section, wf, now.Add(-7*24*time.Hour), "")
	if err != nil {
		return nil, fmt.Errorf("week count: %w", err)
	}
	month, err := t.items.CountSince(ctx, section, wf, now.Add(-30*24*time.Hour), "")
	if err != nil {
		return nil, fmt.Errorf("month count: %w", err)
	}

	urls, err := t.items.RecentURLs(ctx, section, now.Add(-t.noRepeat))
	if err != nil {
		return nil, fmt.Errorf("recent urls: %w", err)
	}
	sourceIDs, err := t.items.RecentSourceIDs(ctx, section, now.Add(-t.cooldown))
	if err != nil {
		return nil, fmt.Errorf("recent sources: %w", err)
	}

	st := &sectionState{
		day:           day,
		week:          week,
		month:         month,
		recentURLs:    make(map[string]struct{}, len(urls)),
		recentSources: make(map[string]struct{}, len(sourceIDs)),
	}
	for _, u := range urls {
		st.recentURLs[u] = struct{}{}
	}
	for _, id := range sourceIDs {
		st.recentSources[id] = struct{}{}
	}

	return st, nil
}

// SourceOnCooldown reports whether the source won admission in the section
// within the cooldown window. Used for the scorer's diversity penalty;
// never excludes a source outright.
func (t *Tracker) SourceOnCooldown(section, sourceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.sections[section]
	if !ok {
		return false
	}
	_, on := st.recentSources[sourceID]
	return on
}

// MonthCount returns the section's trailing-month admitted count as the
// tracker currently sees it, including admissions from this run.
func (t *Tracker) MonthCount(section string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.sections[section]
	if !ok {
		return 0
	}
	return st.month
}

// Admit applies the admission rule to one candidate: reject urls inside the
// no-repeat window, reject once any window cap or the per-run cap is
// reached, otherwise upsert keyed by url (a conflict is success) and bump
// the in-memory counts and guard sets in the same critical section so every
// later admission this run observes the update.
func (t *Tracker) Admit(ctx context.Context, item *database.Item, refreshCreatedAt bool) (Decision, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.sections[item.Section]
	if !ok {
		return DecisionUnknownSection, false, nil
	}
	pol := t.policies.Get(item.Section)
	if pol == nil {
		return DecisionUnknownSection, false, nil
	}

	if st.admittedThisRun >= pol.Caps.PerRun {
		return DecisionPerRunCapped, false, nil
	}

	if _, repeat := st.recentURLs[item.URL]; repeat {
		return DecisionRepeat, false, nil
	}

	if st.day >= pol.Caps.Daily || st.week >= pol.Caps.Weekly || st.month >= pol.Caps.Monthly {
		return DecisionCapped, false, nil
	}

	isNew, err := t.items.Upsert(ctx, item, refreshCreatedAt)
	if err != nil {
		return DecisionAdmitted, false, fmt.Errorf("admit %s: %w", item.URL, err)
	}

	st.day++
	st.week++
	st.month++
	st.admittedThisRun++
	st.recentURLs[item.URL] = struct{}{}
	st.recentSources[item.SourceID] = struct{}{}

	return DecisionAdmitted, isNew, nil
}
