package api

import (
	"context"

	"newsdesk/app/database"
	"newsdesk/app/discovery"
	"newsdesk/app/ingest"
	"newsdesk/app/policy"
)

// IngestTrigger runs one organic ingestion cycle.
type IngestTrigger interface {
	Run(ctx context.Context) (*ingest.Result, error)
}

// DiscoveryTrigger runs one discovery cycle.
type DiscoveryTrigger interface {
	Run(ctx context.Context) (*discovery.Result, error)
}

var _ IngestTrigger = (*ingest.Runner)(nil)
var _ DiscoveryTrigger = (*discovery.Runner)(nil)

type Handler struct {
	db        *database.DB
	policies  policy.Table
	sources   database.SourceRepository
	items     database.ItemRepository
	ingest    IngestTrigger
	discovery DiscoveryTrigger
	version   string
}
