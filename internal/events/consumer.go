package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerManager provisions the durable pull consumers used by the
// dispatcher and the outbound sender.
type ConsumerManager struct {
	js jetstream.JetStream
}

func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer creates or updates a durable consumer filtered to one
// subject. Redelivery is capped so a poison message cannot wedge the
// pipeline; after maxDeliver attempts it is left to the stream's limits.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, stream, name, subject string) (jetstream.Consumer, error) {
	c, err := cm.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return nil, fmt.Errorf("consumer %q on stream %q: %w", name, stream, err)
	}
	return c, nil
}
