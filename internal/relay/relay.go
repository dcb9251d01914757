// Package relay implements the optional Satellite Relay from SPEC_FULL.md
// §4.7: a stateless subscriber that republishes fleet traffic to a remote
// hub's uplink namespace unmodified. Grounded in
// original_source/relay/satellite_relay.py for the subscribe/republish loop
// and in internal/coordinator's listen for the channerics bus fan-in pattern
// it reuses.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	channerics "github.com/niceyeti/channerics/channels"

	"github.com/skyward-ops/mobfleet/internal/bus"
	"github.com/skyward-ops/mobfleet/internal/obslog"
)

// Relay subscribes to the named fleet topics and republishes every message it
// sees, unmodified, under uplinkPrefix + original topic.
type Relay struct {
	bus          bus.Bus
	uplinkPrefix string
	logger       *slog.Logger
}

// New constructs a Relay. It does not subscribe until Run is called.
func New(b bus.Bus, uplinkPrefix string, logger *slog.Logger) *Relay {
	return &Relay{bus: b, uplinkPrefix: uplinkPrefix, logger: obslog.ForTopic(logger, "satellite-relay")}
}

// Run connects the bus, subscribes to mission/start, fleet/event/+, and
// fleet/state/+, and republishes every message received until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.bus.Connect(ctx); err != nil {
		return fmt.Errorf("satellite relay: %w", err)
	}
	defer r.bus.Disconnect()

	topics := []string{"mission/start", "fleet/event/+", "fleet/state/+"}
	chans := make([]<-chan bus.Message, 0, len(topics))
	for _, t := range topics {
		ch, err := r.bus.Subscribe(ctx, t)
		if err != nil {
			return fmt.Errorf("satellite relay: subscribe %s: %w", t, err)
		}
		chans = append(chans, ch)
	}

	merged := channerics.Merge(ctx.Done(), chans...)
	for msg := range channerics.OrDone(ctx.Done(), merged) {
		uplinkTopic := r.uplinkPrefix + msg.Topic
		if err := r.bus.Publish(uplinkTopic, msg.Payload, false); err != nil {
			r.logger.Warn("failed to republish to uplink", "topic", msg.Topic, "error", err)
		}
	}
	return nil
}
