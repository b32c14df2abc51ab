package wire

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// DefaultDocumentBudget caps the size of text Parse accepts.
const DefaultDocumentBudget = 1024

// ErrDocumentTooLarge is returned when the text handed to Parse is larger
// than its capacity budget.
var ErrDocumentTooLarge = errors.New("document exceeds capacity budget")

// Document is a parsed JSON object.
type Document map[string]any

// Parse decodes the first JSON object in text. Anything after that object is
// ignored. Text longer than budget bytes is refused without being decoded; a
// non-positive budget means DefaultDocumentBudget.
func Parse(text string, budget int) (Document, error) {
	if budget <= 0 {
		budget = DefaultDocumentBudget
	}
	if len(text) > budget {
		return nil, fmt.Errorf("%d bytes, budget %d: %w", len(text), budget, ErrDocumentTooLarge)
	}

	var doc Document
	if err := json.NewDecoder(strings.NewReader(text)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return doc, nil
}

// Bool returns the boolean stored under key.
func (d Document) Bool(key string) (bool, bool) {
	v, ok := d[key].(bool)
	return v, ok
}

// String returns the string stored under key.
func (d Document) String(key string) (string, bool) {
	v, ok := d[key].(string)
	return v, ok
}
