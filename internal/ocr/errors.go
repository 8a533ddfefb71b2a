package ocr

import "fmt"

// ParseError means the recognized text failed the field's validation rule.
// The field's previous snapshot value stays untouched and its miss counter
// increments.
type ParseError struct {
	Field  string
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("field %s: %s (raw %q)", e.Field, e.Reason, e.Raw)
}
