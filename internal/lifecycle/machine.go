package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"auction-engine/internal/pricecache"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Machine drives auction phase transitions. Both transitions are idempotent:
// the repository compare-and-set decides whether a call applies, so the
// precise timer, the periodic sweep and a manual close can all race on the
// same auction safely. Events are emitted only by the call whose CAS won,
// which keeps AUCTION_END exactly-once.
type Machine struct {
	repo  repository.AuctionDB
	cache pricecache.PriceCache
	pub   events.Publisher
	now   func() time.Time
}

// NewMachine creates a new lifecycle state machine
func NewMachine(repo repository.AuctionDB, cache pricecache.PriceCache, pub events.Publisher) *Machine {
	return &Machine{
		repo:  repo,
		cache: cache,
		pub:   pub,
		now:   time.Now,
	}
}

// Start moves the auction from UPCOMING to ONGOING. It reports whether this
// call applied the transition; false with nil error means the auction had
// already left UPCOMING.
func (m *Machine) Start(ctx context.Context, auctionID string) (bool, error) {
	auction, err := m.repo.GetAuction(auctionID)
	if err != nil {
		return false, fmt.Errorf("lifecycle: start auction %s: %w", auctionID, err)
	}

	applied, err := m.repo.UpdateAuctionPhase(auctionID, model.PhaseUpcoming, model.PhaseOngoing)
	if err != nil {
		return false, fmt.Errorf("lifecycle: start auction %s: %w", auctionID, err)
	}
	if !applied {
		return false, nil
	}

	events.Emit(ctx, m.pub, model.AuctionEvent{
		Type:       model.EventStatusChange,
		AuctionID:  auctionID,
		CategoryID: auction.CategoryID,
		Phase:      model.PhaseOngoing,
		Timestamp:  m.now().UTC(),
	})
	return true, nil
}

// Finish moves the auction to FINISHED and resolves the winner from the final
// price entry. An UPCOMING auction whose window already passed is finished
// directly, skipping ONGOING. Reports whether this call applied the
// transition.
func (m *Machine) Finish(ctx context.Context, auctionID string) (bool, error) {
	auction, err := m.repo.GetAuction(auctionID)
	if err != nil {
		return false, fmt.Errorf("lifecycle: finish auction %s: %w", auctionID, err)
	}

	applied, err := m.repo.UpdateAuctionPhase(auctionID, model.PhaseOngoing, model.PhaseFinished)
	if err != nil {
		return false, fmt.Errorf("lifecycle: finish auction %s: %w", auctionID, err)
	}
	if !applied && auction.Phase == model.PhaseUpcoming {
		applied, err = m.repo.UpdateAuctionPhase(auctionID, model.PhaseUpcoming, model.PhaseFinished)
		if err != nil {
			return false, fmt.Errorf("lifecycle: finish auction %s: %w", auctionID, err)
		}
	}
	if !applied {
		return false, nil
	}

	winnerID := m.resolveWinner(ctx, auction)
	if winnerID != "" {
		if err := m.repo.SetWinner(auctionID, winnerID); err != nil {
			utils.Error("failed to persist auction winner", map[string]any{
				"auction_id": auctionID,
				"winner_id":  winnerID,
				"error":      err.Error(),
			})
		}
	}

	ts := m.now().UTC()
	events.Emit(ctx, m.pub, model.AuctionEvent{
		Type:       model.EventStatusChange,
		AuctionID:  auctionID,
		CategoryID: auction.CategoryID,
		Phase:      model.PhaseFinished,
		WinnerID:   winnerID,
		Timestamp:  ts,
	})
	events.Emit(ctx, m.pub, model.AuctionEvent{
		Type:       model.EventAuctionEnd,
		AuctionID:  auctionID,
		CategoryID: auction.CategoryID,
		Phase:      model.PhaseFinished,
		WinnerID:   winnerID,
		Timestamp:  ts,
	})
	return true, nil
}

// resolveWinner prefers the cached highest bidder and falls back to the bid
// ledger when the cache entry is gone. An auction with no bids has no winner.
func (m *Machine) resolveWinner(ctx context.Context, auction model.Auction) string {
	entry, ok, err := m.cache.Get(ctx, auction.AuctionID)
	if err != nil {
		utils.Warn("price cache read failed during winner resolution", map[string]any{
			"auction_id": auction.AuctionID,
			"error":      err.Error(),
		})
	} else if ok && entry.BidderID != "" {
		return entry.BidderID
	}

	winning, err := m.repo.GetWinningBid(auction.AuctionID)
	if err != nil {
		if !errors.Is(err, auctionerrors.ErrNoBids) {
			utils.Error("ledger read failed during winner resolution", map[string]any{
				"auction_id": auction.AuctionID,
				"error":      err.Error(),
			})
		}
		return ""
	}
	return winning.UserID
}
