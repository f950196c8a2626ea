package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ItemRepo handles database operations for items.
type ItemRepo struct {
	db *DB
}

func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// windowColumn whitelists the timestamp columns used in window queries so
// they can be interpolated into SQL safely.
func windowColumn(windowField string) (string, error) {
	switch windowField {
	case "published_at", "created_at":
		return windowField, nil
	default:
		return "", fmt.Errorf("invalid window field: %q", windowField)
	}
}

// Upsert inserts an item keyed by url. A unique-constraint conflict updates
// the mutable columns and is treated as success, never as an error. With
// refreshCreatedAt the conflict path also resets created_at to now.
// Returns whether the row was newly inserted.
func (r *ItemRepo) Upsert(ctx context.Context, item *Item, refreshCreatedAt bool) (bool, error) {
	createdAt := "items.created_at"
	if refreshCreatedAt {
		createdAt = "NOW()"
	}

	var isNew bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO items (source_id, url, section, title, summary, country, topics, score, published_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			topics = EXCLUDED.topics,
			score = EXCLUDED.score,
			created_at = `+createdAt+`
		RETURNING (xmax = 0)
	`, item.SourceID, item.URL, item.Section, item.Title, item.Summary,
		item.Country, pq.Array(item.Topics), item.Score, item.PublishedAt).Scan(&isNew)

	if err != nil {
		return false, fmt.Errorf("failed to upsert item: %w", err)
	}

	return isNew, nil
}

// CountSince counts items in a section whose window field is at or after
// the given time, optionally restricted to a source type.
func (r *ItemRepo) CountSince(ctx context.Context, section, windowField string, since time.Time, sourceType string) (int, error) {
	col, err := windowColumn(windowField)
	if err != nil {
		return 0, err
	}

	typeFilter := ""
	args := []interface{}{section, since}
	if sourceType != "" {
		typeFilter = ` AND source_id IN (SELECT id FROM sources WHERE type = $3)`
		args = append(args, sourceType)
	}

	var count int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE section = $1 AND `+col+` >= $2`+typeFilter,
		args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}

	return count, nil
}

// RecentURLs returns urls admitted to the section since the given time.
// Admission time is collection time, so this reads created_at regardless
// of the section's window field.
func (r *ItemRepo) RecentURLs(ctx context.Context, section string, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT url FROM items WHERE section = $1 AND created_at >= $2`,
		section, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url row: %w", err)
		}
		urls = append(urls, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating url rows: %w", err)
	}

	return urls, nil
}

// RecentSourceIDs returns ids of sources that won admission in the section
// since the given time.
func (r *ItemRepo) RecentSourceIDs(ctx context.Context, section string, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT source_id FROM items WHERE section = $1 AND created_at >= $2`,
		section, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent source ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source id row: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source id rows: %w", err)
	}

	return ids, nil
}

// ExistingURLs reports which of the given urls are already stored.
func (r *ItemRepo) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(urls))
	if len(urls) == 0 {
		return existing, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT url FROM items WHERE url = ANY($1)`, pq.Array(urls))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url row: %w", err)
		}
		existing[u] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating url rows: %w", err)
	}

	return existing, nil
}

// PruneWindow deletes items in the section window beyond the top keep rows
// ranked by (score desc, created_at desc). An empty sourceType prunes all
// items in the window, otherwise only items owned by sources of that type.
func (r *ItemRepo) PruneWindow(ctx context.Context, section, windowField string, since time.Time, keep int, sourceType string) (int64, error) {
	col, err := windowColumn(windowField)
	if err != nil {
		return 0, err
	}

	typeFilter := ""
	args := []interface{}{section, since, keep}
	if sourceType != "" {
		typeFilter = ` AND source_id IN (SELECT id FROM sources WHERE type = $4)`
		args = append(args, sourceType)
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM items
		WHERE section = $1 AND `+col+` >= $2`+typeFilter+`
		  AND id NOT IN (
			SELECT id FROM items
			WHERE section = $1 AND `+col+` >= $2`+typeFilter+`
			ORDER BY score DESC, created_at DESC
			LIMIT $3
		  )
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune window: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned items: %w", err)
	}

	return n, nil
}

// DeleteStale deletes items in the section whose window field is older than
// the given time, optionally restricted to a source type.
func (r *ItemRepo) DeleteStale(ctx context.Context, section, windowField string, before time.Time, sourceType string) (int64, error) {
	col, err := windowColumn(windowField)
	if err != nil {
		return 0, err
	}

	typeFilter := ""
	args := []interface{}{section, before}
	if sourceType != "" {
		typeFilter = ` AND source_id IN (SELECT id FROM sources WHERE type = $3)`
		args = append(args, sourceType)
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM items WHERE section = $1 AND `+col+` < $2`+typeFilter,
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale items: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count stale items: %w", err)
	}

	return n, nil
}

// DeleteOlderThan is the unconditional global retention sweep. It uses
// collection time so the horizon is independent of any section's window
// field choice.
func (r *ItemRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM items WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to run retention sweep: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept items: %w", err)
	}

	return n, nil
}
