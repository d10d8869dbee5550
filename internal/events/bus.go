package events

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	model "auction-engine/internal/models"
	"auction-engine/utils"
)

// Channel names encode the target scope so the bridge can route a message
// without inspecting its payload.
const (
	// GlobalChannel carries events for the main feed.
	GlobalChannel = "auctions.feed"

	categoryPrefix = "auctions.category."
	auctionPrefix  = "auction."

	// SubscribePattern matches every channel this bus publishes on.
	SubscribePattern = "auction*"
)

// CategoryChannel returns the per-category feed channel name
func CategoryChannel(categoryID string) string {
	return categoryPrefix + categoryID
}

// AuctionChannel returns the per-auction detail channel name
func AuctionChannel(auctionID string) string {
	return auctionPrefix + auctionID
}

// ScopeKind classifies a channel's target scope
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeCategory
	ScopeAuction
)

// Scope is the routing target decoded from a channel name
type Scope struct {
	Kind ScopeKind
	ID   string // category id or auction id, empty for global
}

// ParseChannel decodes a channel name into its scope. The second return is
// false for channels this pipeline does not recognize.
func ParseChannel(channel string) (Scope, bool) {
	switch {
	case channel == GlobalChannel:
		return Scope{Kind: ScopeGlobal}, true
	case strings.HasPrefix(channel, categoryPrefix):
		id := strings.TrimPrefix(channel, categoryPrefix)
		if id == "" {
			return Scope{}, false
		}
		return Scope{Kind: ScopeCategory, ID: id}, true
	case strings.HasPrefix(channel, auctionPrefix):
		id := strings.TrimPrefix(channel, auctionPrefix)
		if id == "" {
			return Scope{}, false
		}
		return Scope{Kind: ScopeAuction, ID: id}, true
	default:
		return Scope{}, false
	}
}

// ChannelsFor returns the channels an event is published on:
// NEW_AUCTION reaches the global and category feeds, STATUS_CHANGE
// additionally reaches the auction detail channel, and BID_UPDATE /
// AUCTION_END reach the auction detail channel only.
func ChannelsFor(ev model.AuctionEvent) []string {
	switch ev.Type {
	case model.EventNewAuction:
		return []string{GlobalChannel, CategoryChannel(ev.CategoryID)}
	case model.EventStatusChange:
		return []string{GlobalChannel, CategoryChannel(ev.CategoryID), AuctionChannel(ev.AuctionID)}
	case model.EventBidUpdate, model.EventAuctionEnd:
		return []string{AuctionChannel(ev.AuctionID)}
	default:
		return nil
	}
}

// Message is one bus delivery: the channel it was published on plus the event
type Message struct {
	Channel string
	Event   model.AuctionEvent
}

// Publisher emits an event onto a named channel
type Publisher interface {
	Publish(ctx context.Context, channel string, ev model.AuctionEvent) error
}

// Bus is a publisher that also supports process-scoped subscriptions.
// Constructed at startup and closed at shutdown; no ambient singleton.
type Bus interface {
	Publisher
	// Subscribe returns a stream of every message published on this bus's
	// channels plus a cancel func that releases the subscription.
	Subscribe(ctx context.Context) (<-chan Message, func())
	Close() error
}

// Emit publishes ev on every channel its type routes to. Publishing is
// fire-and-forget: failures are logged and swallowed so a push problem can
// never roll back the state change that produced the event.
func Emit(ctx context.Context, pub Publisher, ev model.AuctionEvent) {
	for _, channel := range ChannelsFor(ev) {
		if err := pub.Publish(ctx, channel, ev); err != nil {
			utils.Warn("event publish failed", map[string]any{
				"channel":    channel,
				"event_type": string(ev.Type),
				"auction_id": ev.AuctionID,
				"error":      err.Error(),
			})
		}
	}
}

// ChannelBus is the in-process Bus implementation: buffered fan-out channels
// per subscriber, with lagging subscribers dropped instead of blocking the
// publisher.
type ChannelBus struct {
	mu     sync.RWMutex
	subs   map[int64]chan Message
	seq    atomic.Int64
	closed bool
}

// NewChannelBus creates a new in-process event bus
func NewChannelBus() *ChannelBus {
	return &ChannelBus{
		subs: make(map[int64]chan Message),
	}
}

// Publish delivers the message to every live subscriber without blocking
func (b *ChannelBus) Publish(ctx context.Context, channel string, ev model.AuctionEvent) error {
	msg := Message{Channel: channel, Event: ev}

	var lagging []int64

	b.mu.RLock()
	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			lagging = append(lagging, id)
		}
	}
	b.mu.RUnlock()

	if len(lagging) == 0 {
		return nil
	}
	b.mu.Lock()
	for _, id := range lagging {
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
			utils.Warn("event bus dropped lagging subscriber", map[string]any{"subscriber": id})
		}
	}
	b.mu.Unlock()
	return nil
}

// Subscribe registers a new subscriber channel
func (b *ChannelBus) Subscribe(ctx context.Context) (<-chan Message, func()) {
	id := b.seq.Add(1)
	ch := make(chan Message, 128)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount reports the number of live subscribers
func (b *ChannelBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops all subscribers and marks the bus closed
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
