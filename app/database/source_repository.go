package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SourceRepo handles database operations for sources.
type SourceRepo struct {
	db *DB
}

func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, url, section, name, type, COALESCE(country, ''),
	trust_score, enabled, auto_disabled, last_fetched_at, last_ok_at,
	consecutive_fails, created_at, updated_at`

func scanSource(row interface{ Scan(...interface{}) error }) (Source, error) {
	var s Source
	err := row.Scan(
		&s.ID, &s.URL, &s.Section, &s.Name, &s.Type, &s.Country,
		&s.TrustScore, &s.Enabled, &s.AutoDisabled, &s.LastFetchedAt, &s.LastOkAt,
		&s.ConsecutiveFails, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// ListEnabled returns enabled sources of the given type in rotation order:
// least-recently-fetched first (never-fetched sources lead), then higher
// trust, then older registration.
func (r *SourceRepo) ListEnabled(ctx context.Context, sourceType string) ([]Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE enabled = TRUE AND type = $1
		ORDER BY last_fetched_at ASC NULLS FIRST, trust_score DESC, created_at ASC
	`, sourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

// GetByURL returns the source with the given url, or nil if none exists.
func (r *SourceRepo) GetByURL(ctx context.Context, url string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE url = $1
	`, url)

	s, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source by url: %w", err)
	}

	return &s, nil
}

// Upsert inserts or updates a source keyed by url and returns its id.
func (r *SourceRepo) Upsert(ctx context.Context, src *Source) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sources (url, section, name, type, country, trust_score, enabled)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		ON CONFLICT (url) DO UPDATE SET
			section = EXCLUDED.section,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			country = EXCLUDED.country,
			trust_score = EXCLUDED.trust_score,
			updated_at = NOW()
		RETURNING id
	`, src.URL, src.Section, src.Name, src.Type, src.Country, src.TrustScore, src.Enabled).Scan(&id)

	if err != nil {
		return "", fmt.Errorf("failed to upsert source: %w", err)
	}

	return id, nil
}

// MarkAttempt records a fetch attempt. A success resets the failure counter
// and stamps last_ok_at; a failure increments the counter. Returns the
// consecutive failure count after the update.
func (r *SourceRepo) MarkAttempt(ctx context.Context, id string, ok bool) (int, error) {
	var fails int
	var err error

	if ok {
		err = r.db.QueryRowContext(ctx, `
			UPDATE sources
			SET last_fetched_at = NOW(), last_ok_at = NOW(),
			    consecutive_fails = 0, updated_at = NOW()
			WHERE id = $1
			RETURNING consecutive_fails
		`, id).Scan(&fails)
	} else {
		err = r.db.QueryRowContext(ctx, `
			UPDATE sources
			SET last_fetched_at = NOW(),
			    consecutive_fails = consecutive_fails + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING consecutive_fails
		`, id).Scan(&fails)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to mark fetch attempt: %w", err)
	}

	return fails, nil
}

// SetEnabled flips the enabled flag. autoDisabled marks the change as made
// by the failure policy so the re-enable sweep can find it later.
func (r *SourceRepo) SetEnabled(ctx context.Context, id string, enabled, autoDisabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET enabled = $2, auto_disabled = $3, updated_at = NOW()
		WHERE id = $1
	`, id, enabled, autoDisabled)

	if err != nil {
		return fmt.Errorf("failed to set source enabled: %w", err)
	}

	return nil
}

// ReEnableAutoDisabled re-enables sources disabled by the failure policy
// that have not been attempted since the given time, giving them a chance
// to recover without manual intervention.
func (r *SourceRepo) ReEnableAutoDisabled(ctx context.Context, notAttemptedSince time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET enabled = TRUE, auto_disabled = FALSE,
		    consecutive_fails = 0, updated_at = NOW()
		WHERE enabled = FALSE AND auto_disabled = TRUE
		  AND (last_fetched_at IS NULL OR last_fetched_at < $1)
	`, notAttemptedSince)
	if err != nil {
		return 0, fmt.Errorf("failed to re-enable sources: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count re-enabled sources: %w", err)
	}

	return n, nil
}
