// Package dispatch consumes inbound messages from JetStream and runs each one
// through media conversion, translation, the dialogue engine, and finally the
// outbound publish. One dispatcher instance handles all users; per-user
// conversational state lives in Redis, not here.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/orderdesk-bot/orderdesk/internal/dialogue"
	"github.com/orderdesk-bot/orderdesk/internal/events"
	"github.com/orderdesk-bot/orderdesk/internal/nlp"
)

const msgRateLimited = "You're sending messages a little fast. Give me a moment and try again."

// MediaFetcher resolves a media id to its bytes. Satisfied by
// messenger.Sender.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// ReplyEngine turns a normalized message into reply text. Satisfied by
// dialogue.Engine.
type ReplyEngine interface {
	Handle(ctx context.Context, msg dialogue.Message) string
}

// EventPublisher is the slice of the NATS publisher the dispatcher needs.
type EventPublisher interface {
	PublishOutboundMessage(ctx context.Context, msg events.OutboundMessage) error
	PublishAuditEvent(ctx context.Context, event events.AuditEvent) error
}

// Limiter is the per-sender rate limit check. Satisfied by
// middleware.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Dispatcher wires the inbound consumer to the dialogue engine.
type Dispatcher struct {
	engine      ReplyEngine
	publisher   EventPublisher
	consumerMgr *events.ConsumerManager
	media       MediaFetcher
	transcriber nlp.Transcriber
	describer   nlp.Describer
	translator  nlp.Translator
	limiter     Limiter
	logger      *slog.Logger
}

func NewDispatcher(
	engine ReplyEngine,
	publisher EventPublisher,
	consumerMgr *events.ConsumerManager,
	media MediaFetcher,
	transcriber nlp.Transcriber,
	describer nlp.Describer,
	translator nlp.Translator,
	limiter Limiter,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default().With("component", "dispatch")
	}
	return &Dispatcher{
		engine:      engine,
		publisher:   publisher,
		consumerMgr: consumerMgr,
		media:       media,
		transcriber: transcriber,
		describer:   describer,
		translator:  translator,
		limiter:     limiter,
		logger:      logger,
	}
}

// Start begins the dispatch event loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	consumer, err := d.consumerMgr.EnsureConsumer(ctx, events.StreamMessages, "dispatcher", events.SubjectInboundMessage)
	if err != nil {
		return err
	}

	d.logger.Info("dispatcher started", "consumer", "dispatcher")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(events.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Debug("fetching inbound messages", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			d.processMessage(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (d *Dispatcher) processMessage(ctx context.Context, msg jetstream.Msg) {
	var inbound events.InboundMessage
	if err := json.Unmarshal(msg.Data(), &inbound); err != nil {
		d.logger.Error("unmarshaling inbound message", "error", err)
		_ = msg.Nak()
		return
	}

	reply := d.handle(ctx, inbound)
	if reply != "" {
		out := events.OutboundMessage{
			ID:        uuid.New().String(),
			To:        inbound.From,
			Text:      reply,
			InReplyTo: inbound.WamID,
		}
		if err := d.publisher.PublishOutboundMessage(ctx, out); err != nil {
			d.logger.Error("publishing outbound message", "id", inbound.ID, "error", err)
		}
	}

	_ = msg.Ack()
}

// handle turns one inbound message into reply text. An empty reply means the
// message was dropped on purpose.
func (d *Dispatcher) handle(ctx context.Context, inbound events.InboundMessage) string {
	allowed, err := d.limiter.Allow(ctx, "ratelimit:sender:"+inbound.From)
	if err != nil {
		// Fail open, same as the HTTP middleware.
		d.logger.Warn("rate limiter unavailable", "error", err)
	} else if !allowed {
		d.audit(ctx, inbound.From, "message_dropped", "rate_limit", "rate_limited")
		return msgRateLimited
	}

	text, ok := d.resolveText(ctx, inbound)
	if !ok {
		d.audit(ctx, inbound.From, "message_dropped", "media", "media_unreadable")
		return "Sorry, I couldn't read that message. Could you type it instead?"
	}

	original := ""
	if d.translator != nil {
		translated, orig, err := d.translator.Translate(ctx, text)
		if err != nil {
			d.logger.Warn("translating message", "id", inbound.ID, "error", err)
		} else if translated != "" {
			text, original = translated, orig
		}
	}

	reply := d.engine.Handle(ctx, dialogue.Message{
		UserID:       inbound.From,
		Text:         text,
		OriginalText: original,
		ReplyToID:    inbound.ReplyToID,
		Forwarded:    inbound.Forwarded,
	})

	d.audit(ctx, inbound.From, "message_handled", "dialogue", inbound.MediaType)
	return reply
}

// resolveText produces the text form of the message, transcribing audio and
// describing images when needed.
func (d *Dispatcher) resolveText(ctx context.Context, inbound events.InboundMessage) (string, bool) {
	switch inbound.MediaType {
	case events.MediaAudio:
		data, mime, err := d.media.DownloadMedia(ctx, inbound.MediaID)
		if err != nil {
			d.logger.Error("downloading audio", "media_id", inbound.MediaID, "error", err)
			return "", false
		}
		text, err := d.transcriber.Transcribe(ctx, data, mime)
		if err != nil || text == "" {
			d.logger.Error("transcribing audio", "media_id", inbound.MediaID, "error", err)
			return "", false
		}
		return text, true

	case events.MediaImage:
		data, mime, err := d.media.DownloadMedia(ctx, inbound.MediaID)
		if err != nil {
			d.logger.Error("downloading image", "media_id", inbound.MediaID, "error", err)
			return "", false
		}
		desc, err := d.describer.Describe(ctx, data, mime)
		if err != nil || desc == "" {
			d.logger.Error("describing image", "media_id", inbound.MediaID, "error", err)
			return "", false
		}
		if inbound.Text != "" {
			// Keep the caption; it usually carries the actual request.
			return inbound.Text + "\n" + desc, true
		}
		return desc, true

	default:
		return inbound.Text, true
	}
}

func (d *Dispatcher) audit(ctx context.Context, userID, eventType, stage, details string) {
	event := events.AuditEvent{
		UserID:    userID,
		EventType: eventType,
		Stage:     stage,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	if err := d.publisher.PublishAuditEvent(ctx, event); err != nil {
		d.logger.Warn("publishing audit event", "error", err)
	}
}
