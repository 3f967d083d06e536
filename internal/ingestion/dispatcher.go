package ingestion

import (
	"context"
	"log"

	"PariPool/internal/engine"
	"PariPool/internal/observability"
)

// Dispatcher drains the command channel, parses each command, and applies
// it to the engine. Parse failures ACK (redelivery cannot fix a malformed
// command); batch-shape rejections from the engine ACK for the same
// reason. Per-entry conflicts are already absorbed by skip semantics, so
// a dispatched batch never needs a NAK on business grounds.
type Dispatcher struct {
	eng         *engine.Engine
	commandChan <-chan RawCommand
	metrics     *observability.Metrics
}

func NewDispatcher(eng *engine.Engine, commandChan <-chan RawCommand, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		eng:         eng,
		commandChan: commandChan,
		metrics:     metrics,
	}
}

// Run processes commands until the context is cancelled or the channel
// closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-d.commandChan:
			if !ok {
				return nil
			}
			d.handle(raw)
		}
	}
}

func (d *Dispatcher) handle(raw RawCommand) {
	if d.metrics != nil {
		d.metrics.CommandsReceived.WithLabelValues(raw.Subject).Inc()
	}

	switch raw.Subject {
	case "pari.commands.resolve":
		cmd, err := ParseResolveCommand(raw.Data)
		if err != nil {
			d.discard(raw, "parse", err)
			return
		}
		res, err := d.eng.ResolveMany(cmd.MatchIDs, cmd.Results, cmd.Timestamp)
		if err != nil {
			d.discard(raw, "batch_shape", err)
			return
		}
		log.Printf("INFO: resolve command applied=%d skipped=%d", res.Applied, len(res.Skipped))
		raw.AckFunc()

	case "pari.commands.cancel":
		cmd, err := ParseCancelCommand(raw.Data)
		if err != nil {
			d.discard(raw, "parse", err)
			return
		}
		res, err := d.eng.CancelMany(cmd.MatchIDs, cmd.Reason, cmd.Timestamp)
		if err != nil {
			d.discard(raw, "batch_shape", err)
			return
		}
		log.Printf("INFO: cancel command applied=%d skipped=%d", res.Applied, len(res.Skipped))
		raw.AckFunc()

	default:
		log.Printf("WARN: command on unknown subject %s dropped", raw.Subject)
		raw.AckFunc()
	}
}

// discard ACKs a command that can never succeed and counts the error.
func (d *Dispatcher) discard(raw RawCommand, reason string, err error) {
	if d.metrics != nil {
		d.metrics.CommandErrors.WithLabelValues(raw.Subject, reason).Inc()
	}
	log.Printf("WARN: command on %s discarded: %v", raw.Subject, err)
	raw.AckFunc()
}
