package models

import "time"

// Phase is the lifecycle state of an auction. Transitions are strictly
// forward: UPCOMING -> ONGOING -> FINISHED, and FINISHED is terminal.
type Phase string

const (
	PhaseUpcoming Phase = "UPCOMING"
	PhaseOngoing  Phase = "ONGOING"
	PhaseFinished Phase = "FINISHED"
)

// User represents a participant in the auction
type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Auction represents a single timed sale event for one product
type Auction struct {
	AuctionID    string    `json:"auction_id"`
	ProductID    string    `json:"product_id"`
	CategoryID   string    `json:"category_id"`
	Title        string    `json:"title"`
	StartPrice   float64   `json:"start_price"`
	MinIncrement float64   `json:"min_increment"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Phase        Phase     `json:"phase"`
	WinnerID     string    `json:"winner_id,omitempty"`
}

// Live reports whether t falls inside the auction's bidding window.
func (a Auction) Live(t time.Time) bool {
	return !t.Before(a.StartTime) && !t.After(a.EndTime)
}

// Bid represents an accepted user bid on an auction. Bids are append-only;
// they are never updated or deleted once recorded.
type Bid struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// PriceEntry is the cached current-highest record for one auction.
// It is a performance accelerator, not the system of record: when absent
// it is rebuilt from the bid ledger and the auction start price.
type PriceEntry struct {
	Amount   float64 `json:"amount"`
	BidderID string  `json:"bidder_id,omitempty"`
}
