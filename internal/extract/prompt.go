package extract

import (
	"fmt"
	"strings"
	"time"

	"schedai/internal/models"
)

// NowContext is the caller's current local date and time, used to resolve
// relative expressions such as "besok" or "tonight".
type NowContext struct {
	Date string // YYYY-MM-DD
	Time string // HH:mm
}

// NowContextFrom captures t as a NowContext.
func NowContextFrom(t time.Time) NowContext {
	return NowContext{Date: t.Format(models.DateLayout), Time: t.Format(models.TimeLayout)}
}

const eventSchema = `{
  "title": "short activity name",
  "date": "YYYY-MM-DD",
  "startTime": "HH:mm (24-hour)",
  "endTime": "HH:mm (24-hour, optional)",
  "location": "free text, optional",
  "category": "Work | Study | Personal | Health | Meeting | Break",
  "priority": "high | medium | low",
  "confidence": 0.0
}`

// relativeRule maps an idiom to a date offset and an optional default time.
type relativeRule struct {
	phrase string
	days   int
	clock  string
}

var relativeRules = []relativeRule{
	{phrase: "besok pagi", days: 1, clock: "09:00"},
	{phrase: "besok siang", days: 1, clock: "13:00"},
	{phrase: "besok sore", days: 1, clock: "16:00"},
	{phrase: "besok malam", days: 1, clock: "19:00"},
	{phrase: "besok", days: 1},
	{phrase: "lusa", days: 2},
	{phrase: "nanti malam", days: 0, clock: "19:00"},
	{phrase: "malam ini", days: 0, clock: "19:00"},
	{phrase: "sore ini", days: 0, clock: "16:00"},
	{phrase: "hari ini", days: 0},
	{phrase: "minggu depan", days: 7},
	{phrase: "tomorrow morning", days: 1, clock: "09:00"},
	{phrase: "tomorrow", days: 1},
	{phrase: "tonight", days: 0, clock: "19:00"},
	{phrase: "this evening", days: 0, clock: "19:00"},
	{phrase: "next week", days: 7},
}

// buildSinglePrompt asks for exactly one event object for phrase.
func buildSinglePrompt(phrase string, now NowContext) string {
	var b strings.Builder
	b.WriteString("You extract calendar events from short natural-language requests, often in Indonesian or English.\n\n")
	fmt.Fprintf(&b, "Current date: %s\nCurrent time: %s\n\n", now.Date, now.Time)
	b.WriteString("Interpret relative expressions with these rules:\n")
	for _, line := range relativeRuleLines(now) {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("- \"jam N\" / \"pukul N\" means N:00; combine with pagi (morning), siang (midday), sore (afternoon) or malam (evening) to pick AM or PM.\n")
	b.WriteString("- If no time of day is stated, use 09:00.\n\n")
	b.WriteString("Respond with ONLY one JSON object, no prose and no markdown, using this schema:\n")
	b.WriteString(eventSchema)
	b.WriteString("\n\nRequest: \"")
	b.WriteString(phrase)
	b.WriteString("\"\n")
	return b.String()
}

// buildBulkPrompt asks for an array of events found in documentText.
func buildBulkPrompt(documentText, instruction string) string {
	var b strings.Builder
	b.WriteString("You read schedules, syllabi and timetables and list every dated or recurring event they contain.\n\n")
	if strings.TrimSpace(instruction) != "" {
		b.WriteString("Only include events matching this instruction from the user: ")
		b.WriteString(strings.TrimSpace(instruction))
		b.WriteString("\n\n")
	}
	b.WriteString("Respond with ONLY a JSON array, no prose and no markdown. Every element must follow this schema, ")
	b.WriteString("include both startTime and endTime, and carry a confidence between 0 and 1 describing how sure you are:\n")
	b.WriteString(eventSchema)
	b.WriteString("\n\nIf nothing qualifies, respond with [].\n\nDocument:\n")
	b.WriteString(documentText)
	b.WriteString("\n")
	return b.String()
}

func relativeRuleLines(now NowContext) []string {
	base, err := time.Parse(models.DateLayout, now.Date)
	lines := make([]string, 0, len(relativeRules))
	for _, r := range relativeRules {
		target := fmt.Sprintf("today + %d days", r.days)
		if err == nil {
			target = base.AddDate(0, 0, r.days).Format(models.DateLayout)
		}
		if r.clock != "" {
			lines = append(lines, fmt.Sprintf("%q means date %s, startTime %s unless another time is given", r.phrase, target, r.clock))
		} else {
			lines = append(lines, fmt.Sprintf("%q means date %s", r.phrase, target))
		}
	}
	return lines
}
