// Package messenger talks to the WhatsApp Cloud API: sending text replies and
// downloading media referenced by inbound messages.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/orderdesk-bot/orderdesk/internal/config"
)

const (
	defaultTimeout  = 30 * time.Second
	maxDownloadSize = 16 << 20
)

// Sender is a WhatsApp Cloud API client.
type Sender struct {
	cfg    config.WhatsAppConfig
	client *http.Client
	logger *slog.Logger
}

func NewSender(cfg config.WhatsAppConfig, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default().With("component", "messenger")
	}
	return &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
}

type textPayload struct {
	Body string `json:"body"`
}

type contextRef struct {
	MessageID string `json:"message_id"`
}

type sendRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             textPayload `json:"text"`
	Context          *contextRef `json:"context,omitempty"`
}

// Send delivers a text message. inReplyTo, when set, threads the reply to the
// original WhatsApp message.
func (s *Sender) Send(ctx context.Context, to, text, inReplyTo string) error {
	reqBody := sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textPayload{Body: text},
	}
	if inReplyTo != "" {
		reqBody.Context = &contextRef{MessageID: inReplyTo}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.cfg.APIBase, s.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send rejected with status %d: %s", resp.StatusCode, body)
	}
	return nil
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// DownloadMedia resolves a media id to its content and MIME type. The Cloud
// API hands back a short-lived URL that must be fetched with the same token.
func (s *Sender) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	info, err := s.mediaInfo(ctx, mediaID)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building media download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, "", fmt.Errorf("reading media %s: %w", mediaID, err)
	}
	return data, info.MimeType, nil
}

func (s *Sender) mediaInfo(ctx context.Context, mediaID string) (*mediaInfo, error) {
	url := fmt.Sprintf("%s/%s", s.cfg.APIBase, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building media info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching media info for %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media info failed with status %d", resp.StatusCode)
	}

	var info mediaInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding media info: %w", err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("media info for %s has no url", mediaID)
	}
	return &info, nil
}
