package database

import (
	"context"
	"time"
)

type SourceRepository interface {
	// ListEnabled returns enabled sources of the given type ordered by
	// (last_fetched_at asc nulls first, trust_score desc, created_at asc).
	ListEnabled(ctx context.Context, sourceType string) ([]Source, error)
	GetByURL(ctx context.Context, url string) (*Source, error)

	// Upsert inserts or updates a source keyed by url and returns its id.
	Upsert(ctx context.Context, src *Source) (string, error)

	// MarkAttempt records a fetch attempt and returns the consecutive
	// failure count after the update.
	MarkAttempt(ctx context.Context, id string, ok bool) (int, error)
	SetEnabled(ctx context.Context, id string, enabled, autoDisabled bool) error

	// ReEnableAutoDisabled re-enables auto-disabled sources that have not
	// been attempted since the given time. Returns the number re-enabled.
	ReEnableAutoDisabled(ctx context.Context, notAttemptedSince time.Time) (int64, error)
}

type ItemRepository interface {
	// Upsert inserts an item keyed by url. A conflict updates the mutable
	// columns and is treated as success. refreshCreatedAt additionally
	// resets created_at to now, keeping the item visible under
	// collection-time window queries. Returns whether the row was new.
	Upsert(ctx context.Context, item *Item, refreshCreatedAt bool) (bool, error)

	// CountSince counts items in a section whose window field (published_at
	// or created_at) is at or after the given time. An empty sourceType
	// counts all items, otherwise only items owned by sources of that type.
	CountSince(ctx context.Context, section, windowField string, since time.Time, sourceType string) (int, error)

	// RecentURLs returns urls admitted to the section since the given time.
	RecentURLs(ctx context.Context, section string, since time.Time) ([]string, error)

	// RecentSourceIDs returns ids of sources that won admission in the
	// section since the given time.
	RecentSourceIDs(ctx context.Context, section string, since time.Time) ([]string, error)

	// ExistingURLs reports which of the given urls are already stored.
	ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)

	// PruneWindow deletes items in the section window beyond the top keep
	// rows ranked by (score desc, created_at desc). An empty sourceType
	// applies to all items, otherwise only items owned by sources of that
	// type are considered.
	PruneWindow(ctx context.Context, section, windowField string, since time.Time, keep int, sourceType string) (int64, error)

	// DeleteStale deletes items in the section whose window field is older
	// than the given time, optionally restricted to a source type.
	DeleteStale(ctx context.Context, section, windowField string, before time.Time, sourceType string) (int64, error)

	// DeleteOlderThan is the unconditional global retention sweep over
	// collection time.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type RunRepository interface {
	Create(ctx context.Context, kind string) (string, error)
	Finish(ctx context.Context, id string, ok bool, added, skipped int, message string) error
}
