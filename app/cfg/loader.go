package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"newsdesk" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"newsdesk" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"newsdesk" description:"Database name"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for trigger endpoints (optional)"`

	// Section policies
	SectionsDir string `long:"sections-dir" env:"SECTIONS_DIR" default:"./sections" description:"Directory containing section policy files"`

	// Ingestion run tunables
	TimeBudgetSec    int `long:"time-budget" env:"TIME_BUDGET_SEC" default:"55" description:"Global time budget per ingest run in seconds"`
	FetchConcurrency int `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"6" description:"Number of concurrent fetch workers"`
	MaxSourcesPerRun int `long:"max-sources" env:"MAX_SOURCES_PER_RUN" default:"48" description:"Maximum sources attempted per ingest run"`
	RequestTimeout   int `long:"request-timeout" env:"REQUEST_TIMEOUT_SEC" default:"8" description:"Per-request fetch timeout in seconds"`
	NoRepeatHours    int `long:"no-repeat-hours" env:"NO_REPEAT_HOURS" default:"12" description:"Hours during which an admitted URL cannot repeat within a section"`
	CooldownHours    int `long:"cooldown-hours" env:"SOURCE_COOLDOWN_HOURS" default:"6" description:"Hours during which a recently winning source is soft-penalized"`

	// Source failure policy
	DisableFailingSources bool `long:"disable-failing" env:"DISABLE_FAILING_SOURCES" description:"Auto-disable sources after repeated fetch failures"`
	DisableThreshold      int  `long:"disable-threshold" env:"DISABLE_THRESHOLD" default:"25" description:"Consecutive failures before a source is auto-disabled"`
	ReEnableAfterHours    int  `long:"reenable-after-hours" env:"REENABLE_AFTER_HOURS" default:"72" description:"Hours before an auto-disabled source is re-enabled"`

	// Retention
	GlobalRetentionDays int `long:"global-retention-days" env:"GLOBAL_RETENTION_DAYS" default:"120" description:"Hard retention horizon for all items"`

	// Fallback aggregators
	FallbackPrimaryURL   string `long:"fallback-primary-url" env:"FALLBACK_PRIMARY_URL" description:"Primary fallback aggregator URL template (%s = query)"`
	FallbackSecondaryURL string `long:"fallback-secondary-url" env:"FALLBACK_SECONDARY_URL" description:"Secondary fallback aggregator URL template (%s = query)"`

	// Discovery providers
	DiscoveryIntervalHours int    `long:"discovery-interval-hours" env:"DISCOVERY_INTERVAL_HOURS" default:"12" description:"Minimum hours between discovery runs per section"`
	YouTubeAPIKey          string `long:"youtube-api-key" env:"YOUTUBE_API_KEY" description:"YouTube Data API key for the video provider"`
	SocialFeedURL          string `long:"social-feed-url" env:"SOCIAL_FEED_URL" description:"Short-form social feed URL template (%s = query)"`

	// Optional AMQP publishing
	AMQPURL      string `long:"amqp-url" env:"AMQP_URL" description:"AMQP broker URL for admitted-item events (optional)"`
	AMQPExchange string `long:"amqp-exchange" env:"AMQP_EXCHANGE" default:"newsdesk" description:"AMQP exchange for admitted-item events"`

	// Application metadata
	UserAgent    string `long:"user-agent" env:"USER_AGENT" default:"Newsdesk/1.0 (+https://newsdesk.example)" description:"User agent string for feed requests"`
	AltUserAgent string `long:"alt-user-agent" env:"ALT_USER_AGENT" default:"Mozilla/5.0 (compatible; NewsdeskBot/1.0)" description:"Alternate user agent for 403/429 retries"`
	LogLevel     string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level (debug, info, warn, error)"`
	LogJSON      bool   `long:"log-json" env:"LOG_JSON" description:"Emit JSON logs instead of text"`
}

func Load() (*Cfg, error) {
	_ = godotenv.Load()

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:     raw.DBHost,
		DBPort:     raw.DBPort,
		DBUser:     raw.DBUser,
		DBPassword: raw.DBPassword,
		DBName:     raw.DBName,

		Port:         raw.Port,
		APIAccessKey: raw.APIAccessKey,
		SectionsDir:  raw.SectionsDir,

		TimeBudget:       time.Duration(raw.TimeBudgetSec) * time.Second,
		FetchConcurrency: raw.FetchConcurrency,
		MaxSourcesPerRun: raw.MaxSourcesPerRun,
		RequestTimeout:   time.Duration(raw.RequestTimeout) * time.Second,
		NoRepeatWindow:   time.Duration(raw.NoRepeatHours) * time.Hour,
		SourceCooldown:   time.Duration(raw.CooldownHours) * time.Hour,

		DisableFailingSources: raw.DisableFailingSources,
		DisableThreshold:      raw.DisableThreshold,
		ReEnableAfter:         time.Duration(raw.ReEnableAfterHours) * time.Hour,

		GlobalRetentionDays: raw.GlobalRetentionDays,

		FallbackPrimaryURL:   raw.FallbackPrimaryURL,
		FallbackSecondaryURL: raw.FallbackSecondaryURL,

		DiscoveryInterval: time.Duration(raw.DiscoveryIntervalHours) * time.Hour,
		YouTubeAPIKey:     raw.YouTubeAPIKey,
		SocialFeedURL:     raw.SocialFeedURL,

		AMQPURL:      raw.AMQPURL,
		AMQPExchange: raw.AMQPExchange,

		UserAgent:    raw.UserAgent,
		AltUserAgent: raw.AltUserAgent,
		LogLevel:     raw.LogLevel,
		LogJSON:      raw.LogJSON,
		Version:      GetVersion(),
	}

	return cfg, nil
}
