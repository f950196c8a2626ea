package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// HTTP server
	Port         string
	APIAccessKey string

	// Section policies
	SectionsDir string

	// Ingestion run tunables
	TimeBudget       time.Duration
	FetchConcurrency int
	MaxSourcesPerRun int
	RequestTimeout   time.Duration
	NoRepeatWindow   time.Duration
	SourceCooldown   time.Duration

	// Source failure policy
	DisableFailingSources bool
	DisableThreshold      int
	ReEnableAfter         time.Duration

	// Retention
	GlobalRetentionDays int

	// Fallback aggregators, %s is the url-escaped section query
	FallbackPrimaryURL   string
	FallbackSecondaryURL string

	// Discovery providers
	DiscoveryInterval time.Duration
	YouTubeAPIKey     string
	SocialFeedURL     string

	// Optional AMQP publishing of admitted items
	AMQPURL      string
	AMQPExchange string

	// Application metadata
	UserAgent    string
	AltUserAgent string
	LogLevel     string
	LogJSON      bool
	Version      string
}

// Budget clamping keeps externally supplied time budgets inside a sane range.
const (
	MinTimeBudget = 10 * time.Second
	MaxTimeBudget = 300 * time.Second

	// Runs with a total budget at or below this threshold use the larger
	// safety margin ("fast mode").
	FastModeBudget = 25 * time.Second

	SafetyMargin         = 5 * time.Second
	FastModeSafetyMargin = 8 * time.Second
)

// ClampedBudget returns the configured time budget clamped to
// [MinTimeBudget, MaxTimeBudget].
func (c *Cfg) ClampedBudget() time.Duration {
	b := c.TimeBudget
	if b < MinTimeBudget {
		return MinTimeBudget
	}
	if b > MaxTimeBudget {
		return MaxTimeBudget
	}
	return b
}

// Margin returns the deadline safety margin for the clamped budget.
func (c *Cfg) Margin() time.Duration {
	if c.ClampedBudget() <= FastModeBudget {
		return FastModeSafetyMargin
	}
	return SafetyMargin
}
