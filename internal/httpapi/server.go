// Package httpapi exposes extraction, scheduling and sync over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schedai/internal/agent"
	"schedai/internal/extract"
	"schedai/internal/logging"
	"schedai/internal/models"
	"schedai/internal/syncer"
)

// EventExtractor turns free text into structured events.
type EventExtractor interface {
	ExtractOne(ctx context.Context, phrase string, now extract.NowContext) (models.StructuredEvent, error)
	ExtractMany(ctx context.Context, documentText, instruction string) (extract.BulkResult, error)
}

// Scheduler runs a scheduling pass for one user.
type Scheduler interface {
	RunForUser(ctx context.Context, userID string, source agent.TaskSource, horizon time.Duration) (agent.RunReport, error)
}

// Suggester proposes a free-text daily schedule for a user's tasks.
type Suggester interface {
	SuggestForUser(ctx context.Context, userID string, source agent.TaskSource, preferences string) (string, error)
}

// WeekSyncer pushes a user's upcoming tasks into the calendar.
type WeekSyncer interface {
	Sync(ctx context.Context, userID string, days int) (syncer.Result, error)
}

// Deps are the collaborators behind the routes. Scheduler, Suggester, Tasks
// and Syncer may be nil, in which case their routes answer 503.
type Deps struct {
	Logger            *slog.Logger
	Extractor         EventExtractor
	Scheduler         Scheduler
	Suggester         Suggester
	Tasks             agent.TaskSource
	Syncer            WeekSyncer
	Location          *time.Location
	Horizon           time.Duration
	MinDocumentLength int
	Now               func() time.Time
}

// NewRouter wires the public routes.
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Horizon <= 0 {
		d.Horizon = 7 * 24 * time.Hour
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.POST("/events/parse", h.parseEvent)
	v1.POST("/events/extract", h.extractEvents)
	v1.POST("/users/:userID/schedule", h.schedule)
	v1.POST("/users/:userID/suggest", h.suggest)
	v1.POST("/users/:userID/sync", h.sync)

	return r
}

type handler struct {
	Deps
}

// requestLogger attaches a request-scoped logger and logs each request.
func (h *handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		log := h.Logger.With("request_id", requestID)
		c.Request = c.Request.WithContext(logging.ContextWithLogger(c.Request.Context(), log))

		start := time.Now()
		c.Next()
		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
