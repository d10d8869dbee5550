package bidding

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/events"
	"auction-engine/internal/lifecycle"
	model "auction-engine/internal/models"
	"auction-engine/internal/pricecache"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// defaultCacheGrace keeps a price entry alive past the auction end so the
// finish transition can still resolve the winner from it.
const defaultCacheGrace = 5 * time.Minute

// BiddingService is the bid admission engine plus the auction setup and
// query operations around it.
type BiddingService struct {
	repo       repository.AuctionDB
	cache      pricecache.PriceCache
	pub        events.Publisher
	scheduler  *lifecycle.Scheduler
	cacheGrace time.Duration
	locks      keyedMutex
	now        func() time.Time
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, cache pricecache.PriceCache, pub events.Publisher, scheduler *lifecycle.Scheduler) *BiddingService {
	return &BiddingService{
		repo:       repo,
		cache:      cache,
		pub:        pub,
		scheduler:  scheduler,
		cacheGrace: defaultCacheGrace,
		now:        time.Now,
	}
}

// PlaceBid validates and records a user's bid on an auction. The cache
// read-validate-write sequence runs under a per-auction lock so two
// concurrent bids can never both validate against the same stale price.
// Rejections are final for the request; the caller may resubmit corrected.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, userID string, amount float64) (model.Bid, error) {
	if auctionID == "" || userID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - missing auctionID or userID", auctionerrors.ErrInvalidBid)
	}
	if amount <= 0 {
		return model.Bid{}, fmt.Errorf("service: %w - non-positive bid amount", auctionerrors.ErrInvalidBid)
	}

	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.repo.GetAuction(auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}

	if auction.Phase != model.PhaseOngoing {
		return model.Bid{}, fmt.Errorf("service: %w - auction %s is %s", auctionerrors.ErrNotLive, auctionID, auction.Phase)
	}
	now := s.now()
	if now.Before(auction.StartTime) {
		return model.Bid{}, fmt.Errorf("service: %w - auction %s starts at %s", auctionerrors.ErrTooEarly, auctionID, auction.StartTime.Format(time.RFC3339))
	}
	if now.After(auction.EndTime) {
		return model.Bid{}, fmt.Errorf("service: %w - auction %s ended at %s", auctionerrors.ErrTooLate, auctionID, auction.EndTime.Format(time.RFC3339))
	}

	entry, err := s.currentPrice(ctx, auction)
	if err != nil {
		return model.Bid{}, err
	}

	if entry.BidderID != "" && entry.BidderID == userID {
		return model.Bid{}, fmt.Errorf("service: %w - user %s already leads auction %s", auctionerrors.ErrSelfOutbid, userID, auctionID)
	}
	if amount <= entry.Amount {
		return model.Bid{}, fmt.Errorf("service: %w - current price is %.2f", auctionerrors.ErrBelowCurrent, entry.Amount)
	}
	if amount < entry.Amount+auction.MinIncrement {
		return model.Bid{}, fmt.Errorf("service: %w - next acceptable amount is %.2f", auctionerrors.ErrBelowIncrement, entry.Amount+auction.MinIncrement)
	}

	bid := model.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		CreatedAt: now.UTC(),
	}

	// Ledger first: the durable append is the commit point. The cache write
	// after it is best-effort and self-heals from the ledger if lost.
	if err := s.repo.RecordBid(bid); err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", auctionID, userID, err)
	}

	newEntry := model.PriceEntry{Amount: amount, BidderID: userID}
	if err := s.cache.Set(ctx, auctionID, newEntry, auction.EndTime.Add(s.cacheGrace)); err != nil {
		utils.Warn("price cache write failed after accepted bid", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
	}

	events.Emit(ctx, s.pub, model.AuctionEvent{
		Type:       model.EventBidUpdate,
		AuctionID:  auctionID,
		CategoryID: auction.CategoryID,
		Amount:     amount,
		BidderID:   userID,
		Timestamp:  bid.CreatedAt,
	})

	return bid, nil
}

// currentPrice reads the cached price entry, rebuilding it from the bid
// ledger (or the start price when no bids exist) on a miss. A cache read
// failure degrades to the ledger path instead of rejecting the bid.
func (s *BiddingService) currentPrice(ctx context.Context, auction model.Auction) (model.PriceEntry, error) {
	entry, ok, err := s.cache.Get(ctx, auction.AuctionID)
	if err != nil {
		utils.Warn("price cache read failed, falling back to ledger", map[string]any{
			"auction_id": auction.AuctionID,
			"error":      err.Error(),
		})
		ok = false
	}
	if ok {
		return entry, nil
	}

	winning, err := s.repo.GetWinningBid(auction.AuctionID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrNoBids) {
			return model.PriceEntry{Amount: auction.StartPrice}, nil
		}
		return model.PriceEntry{}, fmt.Errorf("service: failed to rebuild price for auction %s: %w", auction.AuctionID, err)
	}
	return model.PriceEntry{Amount: winning.Amount, BidderID: winning.UserID}, nil
}

// CreateAuction stores a new auction, seeds its price cache entry, registers
// its lifecycle triggers and announces it on the event bus.
func (s *BiddingService) CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error) {
	if err := s.validateAuction(auction); err != nil {
		return model.Auction{}, err
	}
	if auction.AuctionID == "" {
		auction.AuctionID = utils.GenerateID()
	}
	auction.Phase = model.PhaseUpcoming
	auction.WinnerID = ""

	if err := s.repo.AddAuction(auction); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction: %w", err)
	}

	seed := model.PriceEntry{Amount: auction.StartPrice}
	if err := s.cache.Set(ctx, auction.AuctionID, seed, auction.EndTime.Add(s.cacheGrace)); err != nil {
		utils.Warn("failed to seed price cache for new auction", map[string]any{
			"auction_id": auction.AuctionID,
			"error":      err.Error(),
		})
	}

	s.scheduler.Schedule(auction.AuctionID, auction.StartTime, auction.EndTime)

	events.Emit(ctx, s.pub, model.AuctionEvent{
		Type:       model.EventNewAuction,
		AuctionID:  auction.AuctionID,
		CategoryID: auction.CategoryID,
		Amount:     auction.StartPrice,
		Phase:      model.PhaseUpcoming,
		Timestamp:  s.now().UTC(),
	})

	return auction, nil
}

func (s *BiddingService) validateAuction(auction model.Auction) error {
	if auction.ProductID == "" || auction.CategoryID == "" {
		return fmt.Errorf("service: %w - missing product or category", auctionerrors.ErrInvalidAuction)
	}
	if auction.StartPrice < 0 || auction.MinIncrement <= 0 {
		return fmt.Errorf("service: %w - invalid pricing", auctionerrors.ErrInvalidAuction)
	}
	if !auction.EndTime.After(auction.StartTime) {
		return fmt.Errorf("service: %w - end time must be after start time", auctionerrors.ErrInvalidAuction)
	}
	return nil
}

// CloseAuction is the manual override that ends an auction immediately
func (s *BiddingService) CloseAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidAuction)
	}

	if _, err := s.scheduler.CloseNow(ctx, auctionID); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
	}

	auction, err := s.repo.GetAuction(auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to load auction %s after close: %w", auctionID, err)
	}
	return auction, nil
}

// GetAuction returns the auction record by id
func (s *BiddingService) GetAuction(auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidAuction)
	}

	auction, err := s.repo.GetAuction(auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// GetBidsForAuction returns all bids for a specific auction
func (s *BiddingService) GetBidsForAuction(auctionID string) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByAuction(auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for a specific auction
func (s *BiddingService) GetWinningBid(auctionID string) (model.Bid, error) {
	if auctionID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}

	winningBid, err := s.repo.GetWinningBid(auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	return winningBid, nil
}

// GetAuctionsByUser returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByUser(userID string) ([]model.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", auctionerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}
	return auctions, nil
}

// keyedMutex serializes bid admission per auction id. Striping keeps the
// lock set bounded regardless of how many auctions exist; distinct auctions
// sharing a stripe only cost contention, never correctness.
type keyedMutex struct {
	stripes [64]sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	mu.Lock()
	return mu.Unlock
}
