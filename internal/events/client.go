package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/orderdesk-bot/orderdesk/internal/config"
)

// Client owns the NATS connection and provisions the two streams the bot
// runs on: MESSAGES, a work queue carrying the inbound/outbound pipeline,
// and EVENTS, a limits-retained audit trail.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	c := &Client{conn: nc, js: js}
	if err := c.provisionStreams(ctx); err != nil {
		nc.Close()
		return nil, err
	}

	slog.Info("nats connected", "url", cfg.URL)
	return c, nil
}

func (c *Client) provisionStreams(ctx context.Context) error {
	for _, sc := range []jetstream.StreamConfig{
		{
			// Pipeline messages are consumed exactly once each by their
			// durable consumer; a day of retention covers extended outages.
			Name:      StreamMessages,
			Subjects:  []string{"orderdesk.messages.>"},
			Retention: jetstream.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
		},
		{
			// The audit trail is read by ops tooling, not the bot itself.
			Name:      StreamEvents,
			Subjects:  []string{"orderdesk.events.>"},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
		},
	} {
		if _, err := c.js.CreateOrUpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("provisioning stream %s: %w", sc.Name, err)
		}
	}
	return nil
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Healthy reports whether the connection is currently established.
func (c *Client) Healthy() bool {
	return c.conn.IsConnected()
}

// Close drains in-flight messages before closing the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining nats connection", "error", err)
	}
}
