package lifecycle

import (
	"context"
	"sync"
	"time"

	model "auction-engine/internal/models"
	"auction-engine/internal/pricecache"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// TriggerKind names the two one-shot boundary triggers of an auction
type TriggerKind string

const (
	TriggerStart TriggerKind = "START"
	TriggerEnd   TriggerKind = "END"
)

// Scheduler drives phase transitions through two cooperating mechanisms:
// precise one-shot timers registered per auction boundary, and a periodic
// sweep over cached auctions that forces any overdue finish a lost timer
// missed. Both funnel into the idempotent Machine transitions, so they can
// race without coordination beyond the auction record itself.
type Scheduler struct {
	machine       *Machine
	repo          repository.AuctionDB
	cache         pricecache.PriceCache
	sweepInterval time.Duration
	now           func() time.Time

	mu     sync.Mutex
	timers map[string]map[TriggerKind]*time.Timer
}

// NewScheduler creates a new lifecycle scheduler
func NewScheduler(machine *Machine, repo repository.AuctionDB, cache pricecache.PriceCache, sweepInterval time.Duration) *Scheduler {
	return &Scheduler{
		machine:       machine,
		repo:          repo,
		cache:         cache,
		sweepInterval: sweepInterval,
		now:           time.Now,
		timers:        make(map[string]map[TriggerKind]*time.Timer),
	}
}

// Schedule registers precise triggers for both auction boundaries. Existing
// triggers for the auction are cancelled first, so at most one pending START
// and one pending END exist per auction.
func (s *Scheduler) Schedule(auctionID string, startAt, endAt time.Time) {
	s.Cancel(auctionID)

	now := s.now()
	if startAt.After(now) {
		s.register(auctionID, TriggerStart, startAt.Sub(now))
	}
	if endAt.After(now) {
		s.register(auctionID, TriggerEnd, endAt.Sub(now))
	}
}

// Cancel stops and removes any pending triggers for the auction
func (s *Scheduler) Cancel(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, timer := range s.timers[auctionID] {
		timer.Stop()
		delete(s.timers[auctionID], kind)
	}
	delete(s.timers, auctionID)
}

func (s *Scheduler) register(auctionID string, kind TriggerKind, in time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timers[auctionID] == nil {
		s.timers[auctionID] = make(map[TriggerKind]*time.Timer)
	}
	s.timers[auctionID][kind] = time.AfterFunc(in, func() {
		s.fire(auctionID, kind)
	})
}

// fire runs on the timer goroutine. Failures are logged; a broken trigger
// leaves the correction to the sweep.
func (s *Scheduler) fire(auctionID string, kind TriggerKind) {
	s.mu.Lock()
	if kinds, ok := s.timers[auctionID]; ok {
		delete(kinds, kind)
		if len(kinds) == 0 {
			delete(s.timers, auctionID)
		}
	}
	s.mu.Unlock()

	ctx := context.Background()

	var err error
	switch kind {
	case TriggerStart:
		_, err = s.machine.Start(ctx, auctionID)
	case TriggerEnd:
		_, err = s.machine.Finish(ctx, auctionID)
	}
	if err != nil {
		utils.Error("scheduled transition failed", map[string]any{
			"auction_id": auctionID,
			"trigger":    string(kind),
			"error":      err.Error(),
		})
	}
}

// Recover re-registers triggers for every auction with a still-future
// boundary and eagerly corrects the phase of any auction whose boundary
// passed while the process was down. Each auction is an isolated error
// scope: one failure never aborts the rest.
func (s *Scheduler) Recover(ctx context.Context) {
	now := s.now()

	pending, err := s.repo.AuctionsNeedingSchedule(now)
	if err != nil {
		utils.Error("recovery scan failed", map[string]any{"error": err.Error()})
	} else {
		for _, a := range pending {
			s.Schedule(a.AuctionID, a.StartTime, a.EndTime)
		}
		utils.Info("recovered pending auction triggers", map[string]any{"count": len(pending)})
	}

	unfinished, err := s.repo.AllUnfinished()
	if err != nil {
		utils.Error("phase correction scan failed", map[string]any{"error": err.Error()})
		return
	}
	for _, a := range unfinished {
		s.correct(ctx, a, now)
	}
}

// correct forces the phase an auction should already be in given now
func (s *Scheduler) correct(ctx context.Context, a model.Auction, now time.Time) {
	switch {
	case a.EndTime.Before(now):
		if _, err := s.machine.Finish(ctx, a.AuctionID); err != nil {
			utils.Error("overdue finish correction failed", map[string]any{
				"auction_id": a.AuctionID,
				"error":      err.Error(),
			})
		}
	case a.Phase == model.PhaseUpcoming && a.StartTime.Before(now):
		if _, err := s.machine.Start(ctx, a.AuctionID); err != nil {
			utils.Error("overdue start correction failed", map[string]any{
				"auction_id": a.AuctionID,
				"error":      err.Error(),
			})
		}
	}
}

// Run executes the periodic safety-net sweep until ctx is cancelled. The
// sweep bounds the staleness window of a lost END trigger to sweepInterval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sweep forces the finish of any cached auction whose end time has passed
func (s *Scheduler) sweep(ctx context.Context) {
	ids, err := s.cache.LiveAuctionIDs(ctx)
	if err != nil {
		utils.Error("sweep failed to list cached auctions", map[string]any{"error": err.Error()})
		return
	}

	now := s.now()
	for _, id := range ids {
		auction, err := s.repo.GetAuction(id)
		if err != nil {
			utils.Warn("sweep found cache entry without auction record", map[string]any{
				"auction_id": id,
				"error":      err.Error(),
			})
			continue
		}
		if auction.Phase == model.PhaseFinished || auction.EndTime.After(now) {
			continue
		}
		if _, err := s.machine.Finish(ctx, id); err != nil {
			utils.Error("sweep failed to finish overdue auction", map[string]any{
				"auction_id": id,
				"error":      err.Error(),
			})
		}
	}
}

// CloseNow is the manual override: cancel pending triggers and force the
// finish transition immediately.
func (s *Scheduler) CloseNow(ctx context.Context, auctionID string) (bool, error) {
	s.Cancel(auctionID)
	return s.machine.Finish(ctx, auctionID)
}

// pendingTriggers reports the registered trigger kinds for an auction
func (s *Scheduler) pendingTriggers(auctionID string) []TriggerKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kinds []TriggerKind
	for kind := range s.timers[auctionID] {
		kinds = append(kinds, kind)
	}
	return kinds
}
