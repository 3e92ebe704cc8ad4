// Package extract turns natural-language input into structured events using
// a generation service.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"schedai/internal/models"
	"schedai/internal/sanitize"
)

// Generator produces raw text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extractor builds prompts, calls the generator and validates the output.
type Extractor struct {
	gen    Generator
	logger *slog.Logger
	now    func() time.Time
}

// NewExtractor creates an Extractor backed by gen.
func NewExtractor(logger *slog.Logger, gen Generator) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{gen: gen, logger: logger, now: time.Now}
}

// Rejection describes a bulk element that was dropped.
type Rejection struct {
	Index  int               `json:"index"` // 0-based position in the generated array
	Raw    json.RawMessage   `json:"raw"`
	Fields map[string]string `json:"fields"`
}

// BulkResult holds the valid events of a bulk extraction and the elements
// that were rejected.
type BulkResult struct {
	Events   []models.StructuredEvent `json:"events"`
	Rejected []Rejection              `json:"rejected"`
}

// ExtractOne extracts a single event from phrase. Relative expressions are
// resolved against now; a zero NowContext uses the current time.
func (e *Extractor) ExtractOne(ctx context.Context, phrase string, now NowContext) (models.StructuredEvent, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return models.StructuredEvent{}, ErrEmptyInput
	}
	if now.Date == "" {
		now = NowContextFrom(e.now())
	}
	log := e.logger.With("mode", "single")

	text, err := e.gen.Generate(ctx, buildSinglePrompt(phrase, now))
	if err != nil {
		return models.StructuredEvent{}, fmt.Errorf("extract: generation failed: %w", err)
	}

	payload := sanitize.JSON(text, sanitize.Object)
	var raw rawEvent
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		log.Warn("Generated event is not valid JSON", "error", err)
		return models.StructuredEvent{}, &MalformedResponseError{Raw: text, Err: err}
	}

	event, verr := Validate(raw)
	if verr != nil {
		if verr.onlyMissing() {
			return models.StructuredEvent{}, &IncompleteExtractionError{Missing: verr.Missing()}
		}
		return models.StructuredEvent{}, &MalformedResponseError{Raw: text, Err: verr}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Source = phrase

	log.Info("Extracted event", "title", event.Title, "date", event.Date, "startTime", event.StartTime, "confidence", event.Confidence)
	return event, nil
}

// ExtractMany extracts every event found in documentText, optionally
// narrowed by instruction. Invalid elements are dropped and reported in the
// result; only an unparsable response fails the call.
func (e *Extractor) ExtractMany(ctx context.Context, documentText, instruction string) (BulkResult, error) {
	if strings.TrimSpace(documentText) == "" {
		return BulkResult{}, ErrEmptyInput
	}
	log := e.logger.With("mode", "bulk")

	text, err := e.gen.Generate(ctx, buildBulkPrompt(documentText, instruction))
	if err != nil {
		return BulkResult{}, fmt.Errorf("extract: generation failed: %w", err)
	}

	payload := sanitize.JSON(text, sanitize.Array)
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &elements); err != nil {
		log.Warn("Generated event list is not a JSON array", "error", err)
		return BulkResult{}, &MalformedResponseError{Raw: text, Err: err}
	}

	result := BulkResult{Events: make([]models.StructuredEvent, 0, len(elements))}
	used := make(map[string]bool, len(elements))
	for i, elem := range elements {
		event, verr := validateBulkElement(elem)
		if verr != nil {
			log.Warn("Dropping invalid generated event", "index", i, "error", verr)
			result.Rejected = append(result.Rejected, Rejection{Index: i, Raw: elem, Fields: verr.FieldErrors})
			continue
		}
		event = event.WithID(uniqueID(event.ID, i+1, used))
		event.Source = "document"
		result.Events = append(result.Events, event)
	}

	log.Info("Extracted events from document", "valid", len(result.Events), "rejected", len(result.Rejected))
	return result, nil
}

func validateBulkElement(elem json.RawMessage) (models.StructuredEvent, *ValidationError) {
	var raw rawEvent
	if err := json.Unmarshal(elem, &raw); err != nil {
		return models.StructuredEvent{}, &ValidationError{FieldErrors: map[string]string{"element": "cannot decode event: " + err.Error()}}
	}
	event, verr := Validate(raw)
	if strings.TrimSpace(raw.EndTime) == "" {
		if verr == nil {
			verr = &ValidationError{}
		}
		verr.add("endTime", msgRequired)
	}
	if verr.HasErrors() {
		return models.StructuredEvent{}, verr
	}
	return event, nil
}

// uniqueID keeps the generated id unless it is empty or already taken, in
// which case the 1-based position is used, then a random id.
func uniqueID(id string, position int, used map[string]bool) string {
	candidates := []string{id, strconv.Itoa(position)}
	for _, c := range candidates {
		if c != "" && !used[c] {
			used[c] = true
			return c
		}
	}
	c := uuid.NewString()
	used[c] = true
	return c
}
