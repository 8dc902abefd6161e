// Package nlp provides the natural-language layer of the bot: intent
// classification, fuzzy task matching, audio transcription and translation.
//
// The LLM only proposes structured intents; everything it returns is
// re-checked before use. A provider must never surface malformed model
// output as an error: it degrades to IntentUnknown so the dialogue engine
// can fall back to its help text.
package nlp

import (
	"context"
	"strconv"
	"strings"
)

// Intent is the high-level operation the user asked for.
type Intent string

const (
	IntentCreate  Intent = "create"
	IntentGet     Intent = "get"
	IntentUpdate  Intent = "update"
	IntentUnknown Intent = "unknown"
)

// EntityType is the entity the intent concerns, as the model labels it.
// "reminder" and "product" are aliases users commonly trigger; Canonical
// folds them onto the two real entity types.
type EntityType string

const (
	EntityTask     EntityType = "task"
	EntityReminder EntityType = "reminder"
	EntityOrder    EntityType = "order"
	EntityProduct  EntityType = "product"
	EntityNone     EntityType = "none"
)

// Canonical folds aliases: reminder→task, product→order.
func (e EntityType) Canonical() EntityType {
	switch e {
	case EntityTask, EntityReminder:
		return EntityTask
	case EntityOrder, EntityProduct:
		return EntityOrder
	default:
		return EntityNone
	}
}

// Analysis is the structured result of one classification call. It is
// ephemeral and never persisted.
type Analysis struct {
	Intent Intent         `json:"intent"`
	Entity EntityType     `json:"entity_type"`
	Params map[string]any `json:"parameters"`
}

// UnknownAnalysis is what a provider returns for unparseable model output.
func UnknownAnalysis() *Analysis {
	return &Analysis{Intent: IntentUnknown, Entity: EntityNone, Params: map[string]any{}}
}

// String returns the named parameter as a trimmed string, tolerating the
// model emitting numbers where strings were asked for.
func (a *Analysis) String(key string) string {
	v, ok := a.Params[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// Int returns the named parameter as an int, tolerating string digits.
func (a *Analysis) Int(key string) (int, bool) {
	v, ok := a.Params[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// TaskSummary is the slim task view handed to the matcher so it can rank
// candidates without seeing unrelated fields.
type TaskSummary struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
}

// TaskMatch is one ranked fuzzy-match candidate.
type TaskMatch struct {
	TaskID     int64   `json:"task_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// MatchResult is the outcome of fuzzy task matching.
type MatchResult struct {
	Best              *TaskMatch  `json:"best_match"`
	All               []TaskMatch `json:"all_matches"`
	NeedsConfirmation bool        `json:"needs_confirmation"`
}

// Classifier is the LLM-backed capability the dialogue engine depends on.
// Classify must not return an error for malformed model output; only
// transport-level failures surface as errors. originalText carries the
// pre-translation variant when the inbound message was translated, and may
// be empty.
type Classifier interface {
	Classify(ctx context.Context, text, originalText string) (*Analysis, error)
	MatchTask(ctx context.Context, text string, candidates []TaskSummary) (*MatchResult, error)
}

// Transcriber converts voice-note audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Describer extracts order-relevant text from an image (e.g. a forwarded
// product listing screenshot).
type Describer interface {
	Describe(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Translator normalizes inbound text to English for classification, keeping
// the original alongside. Implementations return the input unchanged when it
// is already English.
type Translator interface {
	Translate(ctx context.Context, text string) (translated, original string, err error)
}
