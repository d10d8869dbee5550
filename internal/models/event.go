package models

import "time"

// EventType identifies the kind of auction event flowing through the
// realtime pipeline.
type EventType string

const (
	EventNewAuction   EventType = "NEW_AUCTION"
	EventStatusChange EventType = "STATUS_CHANGE"
	EventBidUpdate    EventType = "BID_UPDATE"
	EventAuctionEnd   EventType = "AUCTION_END"
)

// AuctionEvent is an immutable realtime payload. Events are never stored;
// they are produced by state changes and consumed by the push pipeline.
// Delivery is best-effort: the durable bid ledger and auction record remain
// the source of truth.
type AuctionEvent struct {
	Type      EventType `json:"type"`
	AuctionID string    `json:"auction_id"`
	Timestamp time.Time `json:"timestamp"`

	CategoryID string  `json:"category_id,omitempty"`
	Phase      Phase   `json:"phase,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	BidderID   string  `json:"bidder_id,omitempty"`
	WinnerID   string  `json:"winner_id,omitempty"`
}
