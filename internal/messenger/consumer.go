package messenger

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/orderdesk-bot/orderdesk/internal/events"
	"github.com/orderdesk-bot/orderdesk/internal/metrics"
)

// OutboundSender is the delivery capability the consumer drives. Satisfied by
// *Sender; tests substitute a stub.
type OutboundSender interface {
	Send(ctx context.Context, to, text, inReplyTo string) error
}

// Consumer drains the outbound message subject and delivers each reply via
// the Cloud API.
type Consumer struct {
	sender      OutboundSender
	consumerMgr *events.ConsumerManager
	logger      *slog.Logger
}

func NewConsumer(sender OutboundSender, consumerMgr *events.ConsumerManager, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default().With("component", "outbound")
	}
	return &Consumer{sender: sender, consumerMgr: consumerMgr, logger: logger}
}

// Start runs the delivery loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, events.StreamMessages, "outbound-sender", events.SubjectOutboundMessage)
	if err != nil {
		return err
	}

	c.logger.Info("outbound sender started", "consumer", "outbound-sender")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(events.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Debug("fetching outbound messages", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.deliver(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg jetstream.Msg) {
	var out events.OutboundMessage
	if err := json.Unmarshal(msg.Data(), &out); err != nil {
		c.logger.Error("unmarshaling outbound message", "error", err)
		_ = msg.Nak()
		return
	}

	if err := c.sender.Send(ctx, out.To, out.Text, out.InReplyTo); err != nil {
		metrics.OutboundSendFailuresTotal.Inc()
		c.logger.Error("delivering message", "id", out.ID, "to", out.To, "error", err)
		// Redelivery gets another shot at transient Cloud API failures.
		_ = msg.Nak()
		return
	}

	c.logger.Debug("message delivered", "id", out.ID, "to", out.To)
	_ = msg.Ack()
}
