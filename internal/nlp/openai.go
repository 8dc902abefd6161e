package nlp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/orderdesk-bot/orderdesk/internal/config"
	"github.com/orderdesk-bot/orderdesk/internal/metrics"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

const classifySystemPrompt = `You are an intent extractor for a WhatsApp assistant that manages tasks and orders.
Given the user's message, respond with ONLY a JSON object:
{"intent": "create"|"get"|"update"|"unknown",
 "entity_type": "task"|"reminder"|"order"|"product"|"none",
 "parameters": { ... }}
Known parameters: title, description, due_date (free text, do not reformat),
status (pending|processing|completed|cancelled), product, quantity,
fulfillment_date (free text, do not reformat), order_id, start_date, end_date.
Copy date phrases verbatim from the message. Omit parameters you are not sure about.
If the message is not about tasks or orders, use intent "unknown".`

const matchSystemPrompt = `You match a user's free-text update request against their task list.
Respond with ONLY a JSON object:
{"matches": [{"task_id": <id>, "confidence": <0..1>, "reason": "<short reason>"}]}
List at most 3 candidates, best first. An empty list means nothing matches.`

const translateSystemPrompt = `Translate the user's message to English.
Respond with ONLY a JSON object: {"translated": "<english text>", "language": "<iso code>"}.
If the message is already English, return it unchanged with language "en".`

// Provider implements Classifier, Transcriber, Describer and Translator
// against an OpenAI-compatible API. Safe for concurrent use.
type Provider struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewProvider returns a Provider backed by the configured endpoint.
func NewProvider(cfg config.LLMConfig) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal chat-completions wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"` // "json_object"
}

// Classify extracts a structured Analysis from free text. Malformed model
// output degrades to IntentUnknown; only transport failures return an error.
func (p *Provider) Classify(ctx context.Context, text, originalText string) (*Analysis, error) {
	user := text
	if originalText != "" && originalText != text {
		user = fmt.Sprintf("%s\n\n(original, untranslated message: %s)", text, originalText)
	}

	body, err := p.chat(ctx, classifySystemPrompt, user, true)
	if err != nil {
		metrics.ClassifierFailuresTotal.Inc()
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		slog.Warn("classifier returned non-object output", "raw", truncate(string(body), 200))
		return UnknownAnalysis(), nil
	}

	analysis := &Analysis{
		Intent: Intent(parsed.Get("intent").String()),
		Entity: EntityType(parsed.Get("entity_type").String()),
		Params: map[string]any{},
	}
	if m, ok := parsed.Get("parameters").Value().(map[string]any); ok {
		analysis.Params = m
	}

	switch analysis.Intent {
	case IntentCreate, IntentGet, IntentUpdate:
	default:
		analysis.Intent = IntentUnknown
	}
	switch analysis.Entity {
	case EntityTask, EntityReminder, EntityOrder, EntityProduct:
	default:
		analysis.Entity = EntityNone
	}

	return analysis, nil
}

// MatchTask ranks candidates against the user's text. The confirmation
// decision is recomputed locally by EvaluateMatches.
func (p *Provider) MatchTask(ctx context.Context, text string, candidates []TaskSummary) (*MatchResult, error) {
	if len(candidates) == 0 {
		return &MatchResult{}, nil
	}

	list, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("marshaling task candidates: %w", err)
	}

	user := fmt.Sprintf("Task list:\n%s\n\nUser message:\n%s", list, text)
	body, err := p.chat(ctx, matchSystemPrompt, user, true)
	if err != nil {
		metrics.ClassifierFailuresTotal.Inc()
		return nil, err
	}

	known := make(map[int64]struct{}, len(candidates))
	for _, c := range candidates {
		known[c.ID] = struct{}{}
	}

	var matches []TaskMatch
	gjson.GetBytes(body, "matches").ForEach(func(_, m gjson.Result) bool {
		id := m.Get("task_id").Int()
		// Drop hallucinated ids the user does not own.
		if _, ok := known[id]; !ok {
			return true
		}
		conf := m.Get("confidence").Float()
		if conf < 0 || conf > 1 {
			return true
		}
		matches = append(matches, TaskMatch{
			TaskID:     id,
			Confidence: conf,
			Reason:     m.Get("reason").String(),
		})
		return true
	})

	return EvaluateMatches(matches), nil
}

// Translate normalizes text to English, returning the original alongside.
// On malformed output it falls back to the input unchanged.
func (p *Provider) Translate(ctx context.Context, text string) (string, string, error) {
	body, err := p.chat(ctx, translateSystemPrompt, text, true)
	if err != nil {
		return "", "", err
	}
	translated := gjson.GetBytes(body, "translated").String()
	if translated == "" {
		return text, text, nil
	}
	return translated, text, nil
}

// Transcribe converts a voice note to text via the audio transcriptions API.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", audioFilename(mimeType))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("writing audio payload: %w", err)
	}
	if err := mw.WriteField("model", "whisper-1"); err != nil {
		return "", fmt.Errorf("writing model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling transcription API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	return gjson.GetBytes(raw, "text").String(), nil
}

// Describe extracts order-relevant text from an image using a vision prompt.
func (p *Provider) Describe(ctx context.Context, image []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	reqBody := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "Describe the product listing in this image as one short sentence naming the product and any visible quantity or price. If it is not a product image, describe it briefly."},
			{Role: "user", Content: []map[string]any{
				{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
			}},
		},
		MaxTokens: 300,
	}

	return p.complete(ctx, reqBody)
}

// chat performs one chat completion and returns the assistant message content.
func (p *Provider) chat(ctx context.Context, system, user string, jsonMode bool) ([]byte, error) {
	reqBody := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: 500,
	}
	if jsonMode {
		reqBody.ResponseFormat = &respFormat{Type: "json_object"}
	}

	content, err := p.complete(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

func (p *Provider) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling chat API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	return gjson.GetBytes(raw, "choices.0.message.content").String(), nil
}

func audioFilename(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return "audio.ogg"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "audio.mp3"
	case strings.Contains(mimeType, "wav"):
		return "audio.wav"
	default:
		return "audio.bin"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
