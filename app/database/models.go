package database

import (
	"time"
)

// Source types. Discovery providers and fallback aggregators are registered
// as synthetic sources so that every item has an owner.
const (
	SourceTypeRSS       = "rss"
	SourceTypeFallback  = "fallback"
	SourceTypeDiscovery = "discovery"
)

// Run kinds recorded in the audit log.
const (
	RunKindIngest    = "ingest"
	RunKindDiscovery = "discovery"
)

// Source represents a feed or provider registered in the database.
type Source struct {
	ID               string
	URL              string
	Section          string
	Name             string
	Type             string
	Country          string
	TrustScore       int
	Enabled          bool
	AutoDisabled     bool
	LastFetchedAt    *time.Time
	LastOkAt         *time.Time
	ConsecutiveFails int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Item represents an admitted candidate. URL is the global dedup key.
type Item struct {
	ID          string
	SourceID    string
	URL         string
	Section     string
	Title       string
	Summary     string
	Country     string
	Topics      []string
	Score       float64
	PublishedAt time.Time
	CreatedAt   time.Time
}

// IngestRun is the audit record for one orchestrator invocation.
type IngestRun struct {
	ID         string
	Kind       string
	StartedAt  time.Time
	FinishedAt *time.Time
	OK         bool
	Added      int
	Skipped    int
	Message    string
}
