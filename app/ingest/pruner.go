package ingest

import (
	"context"
	"fmt"
	"time"

	"newsdesk/app/database"
	"newsdesk/app/policy"
)

// Pruner enforces caps and retention after admission. Admission only checks
// counts; pruning ranks. The two phases are separate on purpose: a newly
// admitted high-score item retroactively evicts an older lower-score item
// once the pruner ranks the window.
type Pruner struct {
	items               database.ItemRepository
	policies            policy.Table
	globalRetentionDays int
	now                 func() time.Time
}

func NewPruner(items database.ItemRepository, policies policy.Table, globalRetentionDays int) *Pruner {
	return &Pruner{
		items:               items,
		policies:            policies,
		globalRetentionDays: globalRetentionDays,
		now:                 time.Now,
	}
}

// PruneSection trims the section to its caps by score rank: the day window
// keeps the top dailyCap, the week window the top weeklyCap (day survivors
// rank inside the week window and survive with it), and for the history
// section the month window keeps monthlyCap. Items past the section's
// retention are deleted afterwards.
func (p *Pruner) PruneSection(ctx context.Context, section string) (int64, error) {
	pol := p.policies.Get(section)
	if pol == nil {
		return 0, fmt.Errorf("no policy for section %q", section)
	}

	now := p.now()
	wf := policy.WindowField(section)
	var pruned int64

	n, err := p.items.PruneWindow(ctx, section, wf, now.Add(-24*time.Hour), pol.Caps.Daily, "")
	if err != nil {
		return pruned, fmt.Errorf("prune day window: %w", err)
	}
	pruned += n

	n, err = p.items.PruneWindow(ctx, section, wf, now.Add(-7*24*time.Hour), pol.Caps.Weekly, "")
	if err != nil {
		return pruned, fmt.Errorf("prune week window: %w", err)
	}
	pruned += n

	if section == policy.HistorySection {
		n, err = p.items.PruneWindow(ctx, section, wf, now.Add(-30*24*time.Hour), pol.Caps.Monthly, "")
		if err != nil {
			return pruned, fmt.Errorf("prune month window: %w", err)
		}
		pruned += n
	}

	n, err = p.items.DeleteStale(ctx, section, wf,
		now.Add(-time.Duration(pol.RetentionDays)*24*time.Hour), "")
	if err != nil {
		return pruned, fmt.Errorf("delete stale items: %w", err)
	}
	pruned += n

	return pruned, nil
}

// GlobalSweep deletes items older than the fixed retention horizon,
// regardless of section.
func (p *Pruner) GlobalSweep(ctx context.Context) (int64, error) {
	before := p.now().Add(-time.Duration(p.globalRetentionDays) * 24 * time.Hour)

	n, err := p.items.DeleteOlderThan(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("global retention sweep: %w", err)
	}

	return n, nil
}
