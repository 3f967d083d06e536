package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"PariPool/internal/event"

	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher publishes settlement notifications to NATS for
// downstream consumers (indexers, UIs). Subjects follow the pattern
// pari.settlement.events.{type}. Publishing is best-effort: the
// persistence log is the source of truth and consumers can backfill
// from it after a gap.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan event.Envelope
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan event.Envelope) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, env); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", env.Sequence, err)
				// Non-fatal: consumers rebuild from the notification log
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := fmt.Sprintf("pari.settlement.events.%s", env.TypeName)
	if env.MatchID != 0 {
		subject = fmt.Sprintf("%s.%d", subject, env.MatchID)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "PARI_SETTLEMENT_EVENTS",
		Subjects:  []string{"pari.settlement.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream PARI_SETTLEMENT_EVENTS")
	return nil
}
