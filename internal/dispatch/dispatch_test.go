package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk-bot/orderdesk/internal/dialogue"
	"github.com/orderdesk-bot/orderdesk/internal/events"
)

type engineStub struct {
	last  dialogue.Message
	reply string
}

func (s *engineStub) Handle(_ context.Context, msg dialogue.Message) string {
	s.last = msg
	return s.reply
}

type publisherStub struct {
	outbound []events.OutboundMessage
	audits   []events.AuditEvent
}

func (s *publisherStub) PublishOutboundMessage(_ context.Context, msg events.OutboundMessage) error {
	s.outbound = append(s.outbound, msg)
	return nil
}

func (s *publisherStub) PublishAuditEvent(_ context.Context, event events.AuditEvent) error {
	s.audits = append(s.audits, event)
	return nil
}

type mediaStub struct {
	data []byte
	mime string
	err  error
}

func (s *mediaStub) DownloadMedia(_ context.Context, _ string) ([]byte, string, error) {
	return s.data, s.mime, s.err
}

type transcriberStub struct {
	text string
	err  error
}

func (s *transcriberStub) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return s.text, s.err
}

type describerStub struct {
	text string
	err  error
}

func (s *describerStub) Describe(_ context.Context, _ []byte, _ string) (string, error) {
	return s.text, s.err
}

type translatorStub struct {
	translated string
	original   string
	err        error
}

func (s *translatorStub) Translate(_ context.Context, text string) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	if s.translated == "" {
		return text, "", nil
	}
	return s.translated, s.original, nil
}

type limiterStub struct {
	allowed bool
	err     error
	keys    []string
}

func (s *limiterStub) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

type fixture struct {
	dispatcher *Dispatcher
	engine     *engineStub
	publisher  *publisherStub
	media      *mediaStub
	limiter    *limiterStub
	transcribe *transcriberStub
	describe   *describerStub
	translate  *translatorStub
}

func newFixture() *fixture {
	f := &fixture{
		engine:     &engineStub{reply: "ok"},
		publisher:  &publisherStub{},
		media:      &mediaStub{},
		limiter:    &limiterStub{allowed: true},
		transcribe: &transcriberStub{},
		describe:   &describerStub{},
		translate:  &translatorStub{},
	}
	f.dispatcher = NewDispatcher(
		f.engine, f.publisher, nil,
		f.media, f.transcribe, f.describe, f.translate, f.limiter,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func TestHandle_TextMessage(t *testing.T) {
	f := newFixture()
	in := events.InboundMessage{ID: "1", WamID: "wamid.1", From: "15550001234", Text: "show my tasks", ReplyToID: "wamid.0", Forwarded: true}

	got := f.dispatcher.handle(context.Background(), in)

	assert.Equal(t, "ok", got)
	assert.Equal(t, "show my tasks", f.engine.last.Text)
	assert.Equal(t, "15550001234", f.engine.last.UserID)
	assert.Equal(t, "wamid.0", f.engine.last.ReplyToID)
	assert.True(t, f.engine.last.Forwarded)
	assert.Equal(t, []string{"ratelimit:sender:15550001234"}, f.limiter.keys)
	require.Len(t, f.publisher.audits, 1)
	assert.Equal(t, "message_handled", f.publisher.audits[0].EventType)
	assert.Equal(t, "dialogue", f.publisher.audits[0].Stage)
}

func TestHandle_RateLimited(t *testing.T) {
	f := newFixture()
	f.limiter.allowed = false

	got := f.dispatcher.handle(context.Background(), events.InboundMessage{From: "15550001234", Text: "hi"})

	assert.Equal(t, msgRateLimited, got)
	require.Len(t, f.publisher.audits, 1)
	assert.Equal(t, "message_dropped", f.publisher.audits[0].EventType)
	assert.Equal(t, "rate_limit", f.publisher.audits[0].Stage)
	assert.Equal(t, "rate_limited", f.publisher.audits[0].Details)
}

func TestHandle_RateLimiterDownFailsOpen(t *testing.T) {
	f := newFixture()
	f.limiter.allowed = false
	f.limiter.err = errors.New("redis down")

	got := f.dispatcher.handle(context.Background(), events.InboundMessage{From: "15550001234", Text: "hi"})

	assert.Equal(t, "ok", got)
}

func TestHandle_AudioTranscribed(t *testing.T) {
	f := newFixture()
	f.media.data = []byte("oggdata")
	f.media.mime = "audio/ogg"
	f.transcribe.text = "order two bags of rice"

	got := f.dispatcher.handle(context.Background(), events.InboundMessage{
		From: "15550001234", MediaType: events.MediaAudio, MediaID: "media-1",
	})

	assert.Equal(t, "ok", got)
	assert.Equal(t, "order two bags of rice", f.engine.last.Text)
}

func TestHandle_AudioDownloadFails(t *testing.T) {
	f := newFixture()
	f.media.err = errors.New("cloud api down")

	got := f.dispatcher.handle(context.Background(), events.InboundMessage{
		From: "15550001234", MediaType: events.MediaAudio, MediaID: "media-1",
	})

	assert.Contains(t, got, "couldn't read")
	require.Len(t, f.publisher.audits, 1)
	assert.Equal(t, "media", f.publisher.audits[0].Stage)
	assert.Equal(t, "media_unreadable", f.publisher.audits[0].Details)
}

func TestHandle_ImageCaptionKept(t *testing.T) {
	f := newFixture()
	f.media.data = []byte("jpeg")
	f.describe.text = "2kg bag of basmati rice"

	got := f.dispatcher.handle(context.Background(), events.InboundMessage{
		From: "15550001234", MediaType: events.MediaImage, MediaID: "media-2", Text: "order this for friday",
	})

	assert.Equal(t, "ok", got)
	assert.Equal(t, "order this for friday\n2kg bag of basmati rice", f.engine.last.Text)
}

func TestHandle_TranslationAppliedWithOriginalKept(t *testing.T) {
	f := newFixture()
	f.translate.translated = "show my orders"
	f.translate.original = "muestra mis pedidos"

	f.dispatcher.handle(context.Background(), events.InboundMessage{From: "15550001234", Text: "muestra mis pedidos"})

	assert.Equal(t, "show my orders", f.engine.last.Text)
	assert.Equal(t, "muestra mis pedidos", f.engine.last.OriginalText)
}

func TestHandle_TranslationFailureUsesRawText(t *testing.T) {
	f := newFixture()
	f.translate.err = errors.New("llm down")

	f.dispatcher.handle(context.Background(), events.InboundMessage{From: "15550001234", Text: "hola"})

	assert.Equal(t, "hola", f.engine.last.Text)
	assert.Empty(t, f.engine.last.OriginalText)
}
