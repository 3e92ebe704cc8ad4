// Package sanitize isolates the JSON payload from a generation response.
//
// Generation services wrap JSON in markdown fences and surround it with prose.
// JSON strips the fences and slices from the first opening bracket to the last
// closing bracket. When no bracket pair is found the trimmed text is returned
// unchanged so that the caller's decode fails loudly.
package sanitize

import "strings"

// Kind selects the JSON shape to isolate.
type Kind int

const (
	Object Kind = iota
	Array
)

const fence = "```"

// JSON returns the payload of kind found in raw.
func JSON(raw string, kind Kind) string {
	text := StripFences(raw)

	open, closing := "{", "}"
	if kind == Array {
		open, closing = "[", "]"
	}
	first := strings.Index(text, open)
	last := strings.LastIndex(text, closing)
	if first == -1 || last == -1 || first > last {
		return text
	}
	return text[first : last+1]
}

// StripFences trims whitespace and removes a leading markdown code fence,
// with or without a language tag, and a trailing fence.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, fence) {
		text = strings.TrimPrefix(text, fence)
		text = strings.TrimLeft(text, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-+")
		text = strings.TrimSpace(text)
	}
	if strings.HasSuffix(text, fence) {
		text = strings.TrimSpace(strings.TrimSuffix(text, fence))
	}
	return text
}
