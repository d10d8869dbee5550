package helpers

import "time"

// Request/Response DTOs
type PlaceBidRequest struct {
	AuctionID string  `json:"auction_id" binding:"required"`
	UserID    string  `json:"user_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
}

type BidResponse struct {
	BidID     string  `json:"bid_id"`
	AuctionID string  `json:"auction_id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"created_at"`
}

type CreateAuctionRequest struct {
	AuctionID    string    `json:"auction_id"`
	ProductID    string    `json:"product_id" binding:"required"`
	CategoryID   string    `json:"category_id" binding:"required"`
	Title        string    `json:"title"`
	StartPrice   float64   `json:"start_price" binding:"gte=0"`
	MinIncrement float64   `json:"min_increment" binding:"required,gt=0"`
	StartTime    time.Time `json:"start_time" binding:"required"`
	EndTime      time.Time `json:"end_time" binding:"required"`
}

type AuctionResponse struct {
	AuctionID    string  `json:"auction_id"`
	ProductID    string  `json:"product_id"`
	CategoryID   string  `json:"category_id"`
	Title        string  `json:"title"`
	StartPrice   float64 `json:"start_price"`
	MinIncrement float64 `json:"min_increment"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	Phase        string  `json:"phase"`
	WinnerID     string  `json:"winner_id,omitempty"`
}
