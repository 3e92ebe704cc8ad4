package extract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError captures field level problems found in a generated event.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for f := range v.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v.FieldErrors[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Missing lists the fields reported as missing, sorted.
func (v *ValidationError) Missing() []string {
	if v == nil {
		return nil
	}
	var out []string
	for f, msg := range v.FieldErrors {
		if msg == msgRequired {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// onlyMissing reports whether every recorded problem is a missing field.
func (v *ValidationError) onlyMissing() bool {
	return v.HasErrors() && len(v.Missing()) == len(v.FieldErrors)
}

// MalformedResponseError reports a response that could not be decoded or
// validated.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("extract: malformed response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IncompleteExtractionError reports a decoded event lacking required fields.
type IncompleteExtractionError struct {
	Missing []string
}

func (e *IncompleteExtractionError) Error() string {
	return "extract: incomplete event, missing " + strings.Join(e.Missing, ", ")
}

// ErrEmptyInput is returned when there is nothing to extract from.
var ErrEmptyInput = errors.New("extract: empty input")
