package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/events"
	"auction-engine/internal/lifecycle"
	model "auction-engine/internal/models"
	"auction-engine/internal/pricecache"
	"auction-engine/internal/push"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
)

// testStack is the full in-memory wiring behind a test router, exposed so
// tests can seed state and observe side effects directly.
type testStack struct {
	repo     *repository.MemoryRepo
	cache    *pricecache.MemoryCache
	bus      *events.ChannelBus
	registry *push.Registry
	router   *gin.Engine
}

// SetupTestStack wires the service against in-memory storage, cache and bus,
// the same shape main builds when no external backends are configured.
func SetupTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	cache := pricecache.NewMemoryCache()
	bus := events.NewChannelBus()
	t.Cleanup(func() { bus.Close() })

	machine := lifecycle.NewMachine(repo, cache, bus)
	scheduler := lifecycle.NewScheduler(machine, repo, cache, time.Hour)
	service := bidding.NewBiddingService(repo, cache, bus, scheduler)
	registry := push.NewRegistry()

	return &testStack{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		registry: registry,
		router:   server.SetupRouter(service, registry),
	}
}

// seedOngoingAuction stores an auction already live, skipping the scheduler
func (s *testStack) seedOngoingAuction(t *testing.T, auctionID string, startPrice, minIncrement float64) {
	t.Helper()

	now := time.Now().UTC()
	auction := model.Auction{
		AuctionID:    auctionID,
		ProductID:    "product-" + auctionID,
		CategoryID:   "cat-1",
		Title:        "Auction " + auctionID,
		StartPrice:   startPrice,
		MinIncrement: minIncrement,
		StartTime:    now.Add(-time.Minute),
		EndTime:      now.Add(time.Hour),
		Phase:        model.PhaseOngoing,
	}
	if err := s.repo.AddAuction(auction); err != nil {
		t.Fatalf("failed to seed auction: %v", err)
	}
	err := s.cache.Set(context.Background(), auctionID, model.PriceEntry{Amount: startPrice}, auction.EndTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to seed price cache: %v", err)
	}
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	return resp, w
}

// dataObject extracts the envelope's data field as an object
func dataObject(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("response data is not an object: %v", resp)
	}
	return data
}

// dataList extracts the envelope's data field as a list
func dataList(t *testing.T, resp map[string]any) []any {
	t.Helper()
	data, ok := resp["data"].([]any)
	if !ok {
		t.Fatalf("response data is not a list: %v", resp)
	}
	return data
}
