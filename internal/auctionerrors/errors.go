package auctionerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already exists")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrUserNoBids      = errors.New("user has not placed any bids")
)

// business logic errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidAuction = errors.New("invalid auction")
)

// Admission rejections. These are expected business outcomes, surfaced
// synchronously to the caller and never retried automatically.
var (
	ErrNotLive        = errors.New("auction is not live")
	ErrTooEarly       = errors.New("auction has not started yet")
	ErrTooLate        = errors.New("auction has already ended")
	ErrSelfOutbid     = errors.New("bidder already holds the highest bid")
	ErrBelowCurrent   = errors.New("bid amount not above current price")
	ErrBelowIncrement = errors.New("bid amount below minimum increment")
)
