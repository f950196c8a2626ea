package parser

import "time"

// SnippetMaxLen bounds the stored summary text.
const SnippetMaxLen = 480

// Candidate is a normalized feed entry, not yet admitted.
type Candidate struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt time.Time
	Categories  []string
}

// ParseError marks a malformed feed. The caller skips the source for the
// rest of the run and does not retry.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "malformed feed: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
