package push

import (
	"context"

	"auction-engine/internal/events"
	"auction-engine/utils"
)

// Bridge connects the event bus to the session registry: it subscribes to
// every auction channel, decodes each message's channel into its target
// scope and hands the payload to the registry for delivery. Unrecognized
// channels are logged and dropped, never fatal.
type Bridge struct {
	bus      events.Bus
	registry *Registry
}

// NewBridge creates a new event-to-session bridge
func NewBridge(bus events.Bus, registry *Registry) *Bridge {
	return &Bridge{
		bus:      bus,
		registry: registry,
	}
}

// Run forwards bus messages to subscribed connections until ctx is
// cancelled or the bus closes.
func (b *Bridge) Run(ctx context.Context) {
	msgs, cancel := b.bus.Subscribe(ctx)
	defer cancel()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.forward(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) forward(msg events.Message) {
	scope, ok := events.ParseChannel(msg.Channel)
	if !ok {
		utils.Warn("dropping message on unrecognized channel", map[string]any{
			"channel": msg.Channel,
		})
		return
	}
	b.registry.Deliver(scope, msg.Event)
}
