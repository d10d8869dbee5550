package push

import (
	"sync"

	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"auction-engine/utils"
)

// Page is the client page context a connection declared interest in
type Page string

const (
	PageMain     Page = "main"
	PageCategory Page = "category"
	PageAuction  Page = "auction"
)

// Subscription is one connection's declared page context. A connection has
// at most one active subscription; subscribing again replaces it.
type Subscription struct {
	Page      Page
	ContextID string // category id or auction id, empty for the main feed
}

// matches implements the event targeting rules: main-feed subscribers see
// NEW_AUCTION and STATUS_CHANGE, category subscribers see the same when the
// category matches, and auction-detail subscribers see STATUS_CHANGE,
// BID_UPDATE and AUCTION_END for their auction.
func (sub Subscription) matches(evType model.EventType, auctionID, categoryID string) bool {
	switch sub.Page {
	case PageMain:
		return evType == model.EventNewAuction || evType == model.EventStatusChange
	case PageCategory:
		return (evType == model.EventNewAuction || evType == model.EventStatusChange) && sub.ContextID == categoryID
	case PageAuction:
		if sub.ContextID != auctionID {
			return false
		}
		return evType == model.EventStatusChange || evType == model.EventBidUpdate || evType == model.EventAuctionEnd
	default:
		return false
	}
}

type session struct {
	connID string
	sub    Subscription
	send   chan model.AuctionEvent
}

// sendBuffer bounds how far a slow connection may lag before it is dropped
const sendBuffer = 32

// Registry tracks the live connections and their subscriptions, and computes
// the exact target set for each event. Purely in-memory, scoped to the
// process lifetime: entries exist from Subscribe until Unsubscribe.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewRegistry creates a new empty session registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
	}
}

// Subscribe registers the connection's page context, replacing any prior
// subscription for the same connection, and returns the connection's push
// channel. The channel is closed when the connection is unsubscribed or
// dropped for lagging.
func (r *Registry) Subscribe(connID string, page Page, contextID string) <-chan model.AuctionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		s.sub = Subscription{Page: page, ContextID: contextID}
		return s.send
	}

	s := &session{
		connID: connID,
		sub:    Subscription{Page: page, ContextID: contextID},
		send:   make(chan model.AuctionEvent, sendBuffer),
	}
	r.sessions[connID] = s
	return s.send
}

// Unsubscribe removes the connection and closes its push channel
func (r *Registry) Unsubscribe(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		delete(r.sessions, connID)
		close(s.send)
	}
}

// ResolveTargets returns the connection ids whose subscription matches the
// event, across all page contexts.
func (r *Registry) ResolveTargets(evType model.EventType, auctionID, categoryID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		if s.sub.matches(evType, auctionID, categoryID) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Deliver pushes the event to every connection subscribed to the channel
// scope the event arrived on, and returns how many connections it reached.
// Sends never block: a connection whose buffer is full is dropped, the same
// way a lagging bus subscriber is.
func (r *Registry) Deliver(scope events.Scope, ev model.AuctionEvent) int {
	var delivered int
	var lagging []string

	r.mu.RLock()
	for id, s := range r.sessions {
		if !scopeMatches(scope, s.sub) {
			continue
		}
		select {
		case s.send <- ev:
			delivered++
		default:
			lagging = append(lagging, id)
		}
	}
	r.mu.RUnlock()

	if len(lagging) == 0 {
		return delivered
	}
	r.mu.Lock()
	for _, id := range lagging {
		if s, ok := r.sessions[id]; ok {
			delete(r.sessions, id)
			close(s.send)
			utils.Warn("dropped lagging push connection", map[string]any{"conn_id": id})
		}
	}
	r.mu.Unlock()
	return delivered
}

// scopeMatches maps a channel scope to the page context it targets
func scopeMatches(scope events.Scope, sub Subscription) bool {
	switch scope.Kind {
	case events.ScopeGlobal:
		return sub.Page == PageMain
	case events.ScopeCategory:
		return sub.Page == PageCategory && sub.ContextID == scope.ID
	case events.ScopeAuction:
		return sub.Page == PageAuction && sub.ContextID == scope.ID
	default:
		return false
	}
}

// Count reports the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
