package ingest

import (
	"context"
	"errors"
	"fmt"

	"newsdesk/app/database"
	"newsdesk/app/parser"
)

// Result is what the external trigger receives from one ingest run. The
// trigger decides retry handling, e.g. treating !OK or
// (StoppedEarly && Added == 0) as retryable.
type Result struct {
	OK      bool  `json:"ok"`
	Added   int   `json:"added"`
	Skipped int   `json:"skipped"`
	Stats   Stats `json:"stats"`
}

// Stats are per-run diagnostics.
type Stats struct {
	SourcesSelected  int   `json:"sources_selected"`
	SourcesFetched   int   `json:"sources_fetched"`
	FetchErrors      int   `json:"fetch_errors"`
	ParseErrors      int   `json:"parse_errors"`
	Candidates       int   `json:"candidates"`
	FallbackUsed     int   `json:"fallback_used"`
	SourcesReEnabled int64 `json:"sources_reenabled,omitempty"`
	Pruned           int64 `json:"pruned"`
	StoppedEarly     bool  `json:"stopped_early"`
	DurationMs       int64 `json:"duration_ms"`
}

// ErrRunInProgress is returned when a trigger arrives while a run of the
// same kind is still executing.
var ErrRunInProgress = errors.New("run already in progress")

// FetchError is a network-level source failure: the source is skipped, its
// failure counter incremented, and the run continues.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AdmissionPublisher receives admitted items, e.g. for fan-out to a message
// broker. Implementations must never block admission on failure.
type AdmissionPublisher interface {
	PublishAdmitted(ctx context.Context, item *database.Item, isNew bool) error
}

// scoredCandidate is a parsed candidate with its owning source and final
// composite score attached, queued for the per-section admission pass.
type scoredCandidate struct {
	parser.Candidate
	sourceID string
	country  string
	score    float64
}
