package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"schedai/internal/agent"
	"schedai/internal/extract"
	"schedai/internal/gemini"
	"schedai/internal/google"
	"schedai/internal/logging"
	"schedai/internal/models"
	"schedai/internal/userlock"
)

// statusClientClosedRequest is the non-standard status for requests the
// client abandoned.
const statusClientClosedRequest = 499

type parseRequest struct {
	Phrase string `json:"phrase"`
	Date   string `json:"date"`
	Time   string `json:"time"`
}

type extractRequest struct {
	Text        string `json:"text"`
	Instruction string `json:"instruction"`
}

type extractResponse struct {
	Events      []models.StructuredEvent `json:"events"`
	Rejected    []extract.Rejection      `json:"rejected"`
	Placeholder bool                     `json:"placeholder"`
}

// POST /v1/events/parse
func (h *handler) parseEvent(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}
	if strings.TrimSpace(req.Phrase) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phrase required"})
		return
	}

	now := extract.NowContextFrom(h.Now().In(h.Location))
	if req.Date != "" {
		if _, err := models.ParseDateTime(req.Date, "00:00", h.Location); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		now.Date = req.Date
	}
	if req.Time != "" {
		if _, err := models.ParseDateTime(now.Date, req.Time, h.Location); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "time must be HH:mm"})
			return
		}
		now.Time = req.Time
	}

	event, err := h.Extractor.ExtractOne(c.Request.Context(), req.Phrase, now)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// POST /v1/events/extract
func (h *handler) extractEvents(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	text, placeholder := extract.PrepareDocument(req.Text, h.MinDocumentLength)
	if placeholder {
		logging.FromContext(c.Request.Context(), h.Logger).Info("Document text too short, using placeholder document", "length", len(req.Text))
	}
	result, err := h.Extractor.ExtractMany(c.Request.Context(), text, req.Instruction)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := extractResponse{Events: result.Events, Rejected: result.Rejected, Placeholder: placeholder}
	if resp.Events == nil {
		resp.Events = []models.StructuredEvent{}
	}
	if resp.Rejected == nil {
		resp.Rejected = []extract.Rejection{}
	}
	c.JSON(http.StatusOK, resp)
}

// POST /v1/users/:userID/schedule
func (h *handler) schedule(c *gin.Context) {
	if h.Scheduler == nil || h.Tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduling is not configured"})
		return
	}
	userID := c.Param("userID")

	ctx := agent.WithoutWaiting(c.Request.Context())
	report, err := h.Scheduler.RunForUser(ctx, userID, h.Tasks, h.Horizon)
	switch {
	case errors.Is(err, agent.ErrNoTasks):
		c.JSON(http.StatusOK, report)
	case err != nil && len(report.Results) > 0:
		logging.FromContext(ctx, h.Logger).Warn("Scheduling run interrupted", "user_id", userID, "error", err)
		c.JSON(errorStatus(err), report)
	case err != nil:
		h.writeError(c, err)
	default:
		c.JSON(http.StatusOK, report)
	}
}

type suggestRequest struct {
	Preferences string `json:"preferences"`
}

// POST /v1/users/:userID/suggest
func (h *handler) suggest(c *gin.Context) {
	if h.Suggester == nil || h.Tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "suggestions are not configured"})
		return
	}
	var req suggestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
	}

	text, err := h.Suggester.SuggestForUser(c.Request.Context(), c.Param("userID"), h.Tasks, req.Preferences)
	if errors.Is(err, agent.ErrNoTasks) {
		c.JSON(http.StatusOK, gin.H{"suggestion": "", "tasks": 0})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": text})
}

// POST /v1/users/:userID/sync?days=N
func (h *handler) sync(c *gin.Context) {
	if h.Syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync is not configured"})
		return
	}
	days := 7
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}

	res, err := h.Syncer.Sync(userlock.WithoutWaiting(c.Request.Context()), c.Param("userID"), days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	body := gin.H{"error": err.Error(), "kind": logging.ErrorKind(err)}
	var incomplete *extract.IncompleteExtractionError
	if errors.As(err, &incomplete) {
		body["missing"] = incomplete.Missing
	}

	log := logging.FromContext(c.Request.Context(), h.Logger)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err, "kind", body["kind"])
	} else {
		log.Warn("Request rejected", "error", err, "kind", body["kind"])
	}
	c.JSON(status, body)
}

func errorStatus(err error) int {
	var (
		incomplete *extract.IncompleteExtractionError
		malformed  *extract.MalformedResponseError
		planning   *agent.PlanningError
		upstream   *gemini.UpstreamError
		transport  *gemini.TransportError
		calendar   *google.UpstreamError
	)
	switch {
	case errors.Is(err, extract.ErrEmptyInput), errors.Is(err, gemini.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.As(err, &incomplete), errors.As(err, &malformed):
		return http.StatusUnprocessableEntity
	case errors.As(err, &planning), errors.As(err, &upstream), errors.As(err, &calendar), errors.Is(err, agent.ErrEmptySuggestion):
		return http.StatusBadGateway
	case errors.As(err, &transport):
		return http.StatusGatewayTimeout
	case errors.Is(err, userlock.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
