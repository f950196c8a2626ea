package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"newsdesk/app/database"
	"newsdesk/app/ingest"
	"newsdesk/app/policy"
)

func NewHandler(db *database.DB, policies policy.Table,
	sources database.SourceRepository, items database.ItemRepository,
	ingestTrigger IngestTrigger, discoveryTrigger DiscoveryTrigger, version string) *Handler {
	return &Handler{
		db:        db,
		policies:  policies,
		sources:   sources,
		items:     items,
		ingest:    ingestTrigger,
		discovery: discoveryTrigger,
		version:   version,
	}
}

// TriggerIngest runs one ingestion cycle synchronously. The external
// trigger (cron, workflow engine) reads the result body to decide whether
// to retry. A concurrent run answers 409.
func (h *Handler) TriggerIngest(c *gin.Context) {
	result, err := h.ingest.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, ingest.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "ingest run already in progress"})
			return
		}
		slog.Error("Ingest run failed", "error", err)
		status := http.StatusInternalServerError
		if result != nil {
			c.JSON(status, result)
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// TriggerDiscovery runs one discovery cycle synchronously.
func (h *Handler) TriggerDiscovery(c *gin.Context) {
	result, err := h.discovery.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, ingest.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "discovery run already in progress"})
			return
		}
		slog.Error("Discovery run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"sections":  len(h.policies),
	}

	if err := h.db.PingContext(c.Request.Context()); err != nil {
		health["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	health["database"] = "ok"

	c.JSON(http.StatusOK, health)
}

// GetStats reports per-section admission counts over the day and week
// windows, using each section's window field.
func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()

	sections := make(map[string]gin.H, len(h.policies))
	for section := range h.policies {
		wf := policy.WindowField(section)

		day, err := h.items.CountSince(ctx, section, wf, now.Add(-24*time.Hour), "")
		if err != nil {
			slog.Error("Database error", "operation", "count_day", "section", section, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		week, err := h.items.CountSince(ctx, section, wf, now.Add(-7*24*time.Hour), "")
		if err != nil {
			slog.Error("Database error", "operation", "count_week", "section", section, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}

		sections[section] = gin.H{"day": day, "week": week}
	}

	stats := gin.H{"sections": sections}

	if sources, err := h.sources.ListEnabled(ctx, database.SourceTypeRSS); err == nil {
		stats["enabled_sources"] = len(sources)
	}

	c.JSON(http.StatusOK, stats)
}
