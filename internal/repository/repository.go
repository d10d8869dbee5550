package repository

import (
	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"
	"fmt"
	"sort"
	"sync"
	"time"
)

// AuctionDB defines the durable auction and bid-ledger storage interface.
// Bids are append-only; auction phase changes go through UpdateAuctionPhase,
// a compare-and-set that is the idempotence primitive for lifecycle
// transitions.
type AuctionDB interface {
	AddAuction(auction model.Auction) error
	GetAuction(auctionID string) (model.Auction, error)
	// UpdateAuctionPhase moves the auction from phase `from` to phase `to`
	// and reports whether the update applied. A false return with nil error
	// means the auction was no longer in `from`, which callers treat as a
	// no-op rather than a failure.
	UpdateAuctionPhase(auctionID string, from, to model.Phase) (bool, error)
	SetWinner(auctionID, userID string) error

	RecordBid(bid model.Bid) error
	GetBidsByAuction(auctionID string) ([]model.Bid, error)
	GetWinningBid(auctionID string) (model.Bid, error)
	GetAuctionsByUser(userID string) ([]model.Auction, error)

	// AuctionsNeedingSchedule returns auctions whose lifecycle is not yet
	// FINISHED and whose end boundary is still ahead of now.
	AuctionsNeedingSchedule(now time.Time) ([]model.Auction, error)
	// AllUnfinished returns every auction not yet FINISHED, regardless of
	// boundaries. Used by boot-time recovery to correct overdue phases.
	AllUnfinished() ([]model.Auction, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB.
// It backs tests and single-process deployments without PostgreSQL.
type MemoryRepo struct {
	mu           sync.RWMutex
	auctions     map[string]model.Auction
	bids         map[string][]model.Bid // key: auctionID
	userAuctions map[string][]string    // key: userID -> auctionIDs the user has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:     make(map[string]model.Auction),
		bids:         make(map[string][]model.Bid),
		userAuctions: make(map[string][]string),
	}
}

// AddAuction stores a new auction record
func (r *MemoryRepo) AddAuction(auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("add auction %s: %w", auction.AuctionID, auctionerrors.ErrAuctionExists)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns the auction record by id
func (r *MemoryRepo) GetAuction(auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// UpdateAuctionPhase applies the phase change only when the auction is still
// in the expected phase.
func (r *MemoryRepo) UpdateAuctionPhase(auctionID string, from, to model.Phase) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return false, fmt.Errorf("update phase for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	if auction.Phase != from {
		return false, nil
	}
	auction.Phase = to
	r.auctions[auctionID] = auction
	return true, nil
}

// SetWinner records the winning bidder on a finished auction
func (r *MemoryRepo) SetWinner(auctionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("set winner for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	auction.WinnerID = userID
	r.auctions[auctionID] = auction
	return nil
}

// RecordBid appends an accepted bid to the ledger
func (r *MemoryRepo) RecordBid(bid model.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[bid.AuctionID]; !ok {
		return fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, auctionerrors.ErrAuctionNotFound)
	}

	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], bid)

	for _, id := range r.userAuctions[bid.UserID] {
		if id == bid.AuctionID {
			return nil
		}
	}
	r.userAuctions[bid.UserID] = append(r.userAuctions[bid.UserID], bid.AuctionID)

	return nil
}

// GetBidsByAuction returns all bids for an auction in insertion order
func (r *MemoryRepo) GetBidsByAuction(auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids, ok := r.bids[auctionID]
	if !ok || len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return append([]model.Bid(nil), bids...), nil
}

// GetWinningBid returns the highest bid for an auction; earliest wins ties
func (r *MemoryRepo) GetWinningBid(auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids, ok := r.bids[auctionID]
	if !ok || len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if b.Amount > winning.Amount || (b.Amount == winning.Amount && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	return winning, nil
}

// GetAuctionsByUser returns all auctions a user has bid on
func (r *MemoryRepo) GetAuctionsByUser(userID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionIDs, ok := r.userAuctions[userID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, auctionerrors.ErrUserNoBids)
	}

	auctions := make([]model.Auction, 0, len(auctionIDs))
	for _, id := range auctionIDs {
		if auction, exists := r.auctions[id]; exists {
			auctions = append(auctions, auction)
		}
	}
	return auctions, nil
}

// AuctionsNeedingSchedule returns unfinished auctions whose end time is still ahead of now
func (r *MemoryRepo) AuctionsNeedingSchedule(now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Auction
	for _, a := range r.auctions {
		if a.Phase != model.PhaseFinished && a.EndTime.After(now) {
			out = append(out, a)
		}
	}
	sortAuctions(out)
	return out, nil
}

// AllUnfinished returns every auction not yet in the FINISHED phase
func (r *MemoryRepo) AllUnfinished() ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Auction
	for _, a := range r.auctions {
		if a.Phase != model.PhaseFinished {
			out = append(out, a)
		}
	}
	sortAuctions(out)
	return out, nil
}

// sortAuctions gives scans a deterministic order
func sortAuctions(auctions []model.Auction) {
	sort.Slice(auctions, func(i, j int) bool {
		return auctions[i].AuctionID < auctions[j].AuctionID
	})
}
