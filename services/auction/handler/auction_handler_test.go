package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"auction-engine/internal/push"
	"auction-engine/services/auction/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *MockAuctionServiceInterface, *push.Registry) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockService := NewMockAuctionServiceInterface(ctrl)
	registry := push.NewRegistry()
	h := NewAuctionHandler(mockService, registry)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/bids", h.RecordBidHandler)
	router.POST("/auctions", h.CreateAuctionHandler)
	router.POST("/auctions/:auction_id/close", h.CloseAuctionHandler)
	router.GET("/auctions/:auction_id", h.GetAuctionHandler)
	router.GET("/auctions/:auction_id/bids", h.GetBidsByAuctionHandler)
	router.GET("/auctions/:auction_id/winning", h.GetWinningBidHandler)
	router.GET("/users/:user_id/auctions", h.GetAuctionsByUserHandler)
	router.GET("/live", h.LiveHandler)
	return router, mockService, registry
}

// Test RecordBidHandler
func TestRecordBidHandler(t *testing.T) {
	router, mockService, _ := newTestRouter(t)
	now := time.Now().UTC()

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func()
		expectedStatus int
		expectedMsg    string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name: "success_valid_bid",
			requestBody: helpers.PlaceBidRequest{
				AuctionID: "auction1",
				UserID:    "user1",
				Amount:    1100,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", 1100.0).
					Return(model.Bid{
						BidID:     uuid.NewString(),
						AuctionID: "auction1",
						UserID:    "user1",
						Amount:    1100.0,
						CreatedAt: now,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid recorded successfully",
			validateData: func(t *testing.T, data map[string]any) {
				bidID := data["bid_id"].(string)
				require.NotEmpty(t, bidID)
				_, parseErr := uuid.Parse(bidID)
				require.NoError(t, parseErr, "BidID should be a valid UUID")
				require.Equal(t, "auction1", data["auction_id"])
				require.Equal(t, "user1", data["user_id"])
				require.Equal(t, 1100.0, data["amount"])
			},
		},
		{
			name:           "invalid_json",
			requestBody:    `{invalid json}`,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "missing_auction_id",
			requestBody: helpers.PlaceBidRequest{
				UserID: "user1",
				Amount: 50,
			},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "missing_user_id",
			requestBody: helpers.PlaceBidRequest{
				AuctionID: "auction1",
				Amount:    50,
			},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "negative_amount",
			requestBody: helpers.PlaceBidRequest{
				AuctionID: "auction1",
				UserID:    "user1",
				Amount:    -10,
			},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "service_not_live",
			requestBody: helpers.PlaceBidRequest{
				AuctionID: "auction1",
				UserID:    "user1",
				Amount:    1100,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", 1100.0).
					Return(model.Bid{}, auctionerrors.ErrNotLive)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction is not live",
		},
		{
			name: "service_below_current",
			requestBody: helpers.PlaceBidRequest{
				AuctionID: "auction1",
				UserID:    "user1",
				Amount:    900,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", 900.0).
					Return(model.Bid{}, auctionerrors.ErrBelowCurrent)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount not above current price",
		},
		{
			name: "service_below_increment",
			requestBody: helpers.PlaceBidRequest{
				AuctionID: "auction1",
				UserID:    "user1",
				Amount:    1050,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", 1050.0).
					Return(model.Bid{}, auctionerrors.ErrBelowIncrement)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount below minimum increment",
		},
		{
			name: "service_self_outbid",
			requestBody: helpers.PlaceBidRequest{
				AuctionID: "auction1",
				UserID:    "user1",
				Amount:    1200,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", 1200.0).
					Return(model.Bid{}, auctionerrors.ErrSelfOutbid)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bidder already holds the highest bid",
		},
		{
			name: "service_auction_missing",
			requestBody: helpers.PlaceBidRequest{
				AuctionID: "ghost",
				UserID:    "user1",
				Amount:    1100,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "ghost", "user1", 1100.0).
					Return(model.Bid{}, auctionerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name: "service_generic_error",
			requestBody: helpers.PlaceBidRequest{
				AuctionID: "auction1",
				UserID:    "user1",
				Amount:    1100,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", 1100.0).
					Return(model.Bid{}, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var reqBody []byte
			var err error
			switch v := tc.requestBody.(type) {
			case string:
				reqBody = []byte(v)
			default:
				reqBody, err = json.Marshal(v)
				require.NoError(t, err)
			}

			tc.mockSetup()

			req := httptest.NewRequest(http.MethodPost, "/bids", bytes.NewReader(reqBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)

			var resp map[string]any
			err = json.Unmarshal(w.Body.Bytes(), &resp)
			require.NoError(t, err)

			require.Contains(t, resp["message"], tc.expectedMsg)

			if tc.validateData != nil && w.Code == http.StatusCreated {
				data := resp["data"].(map[string]any)
				tc.validateData(t, data)
			}
		})
	}
}

// Test CreateAuctionHandler
func TestCreateAuctionHandler(t *testing.T) {
	router, mockService, _ := newTestRouter(t)
	now := time.Now().UTC().Truncate(time.Second)

	validReq := helpers.CreateAuctionRequest{
		ProductID:    "product1",
		CategoryID:   "cat1",
		Title:        "Vintage Lamp",
		StartPrice:   500,
		MinIncrement: 50,
		StartTime:    now.Add(time.Hour),
		EndTime:      now.Add(2 * time.Hour),
	}

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func()
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:        "success",
			requestBody: validReq,
			mockSetup: func() {
				mockService.EXPECT().
					CreateAuction(gomock.Any(), gomock.Any()).
					Return(model.Auction{
						AuctionID:    uuid.NewString(),
						ProductID:    "product1",
						CategoryID:   "cat1",
						Title:        "Vintage Lamp",
						StartPrice:   500,
						MinIncrement: 50,
						StartTime:    now.Add(time.Hour),
						EndTime:      now.Add(2 * time.Hour),
						Phase:        model.PhaseUpcoming,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction created successfully",
		},
		{
			name:           "invalid_json",
			requestBody:    `{not json`,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "missing_product_id",
			requestBody: func() helpers.CreateAuctionRequest {
				r := validReq
				r.ProductID = ""
				return r
			}(),
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "service_invalid_auction",
			requestBody: validReq,
			mockSetup: func() {
				mockService.EXPECT().
					CreateAuction(gomock.Any(), gomock.Any()).
					Return(model.Auction{}, auctionerrors.ErrInvalidAuction)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid auction details",
		},
		{
			name:        "service_duplicate_auction",
			requestBody: validReq,
			mockSetup: func() {
				mockService.EXPECT().
					CreateAuction(gomock.Any(), gomock.Any()).
					Return(model.Auction{}, auctionerrors.ErrAuctionExists)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction already exists",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var reqBody []byte
			var err error
			switch v := tc.requestBody.(type) {
			case string:
				reqBody = []byte(v)
			default:
				reqBody, err = json.Marshal(v)
				require.NoError(t, err)
			}

			tc.mockSetup()

			req := httptest.NewRequest(http.MethodPost, "/auctions", bytes.NewReader(reqBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusCreated {
				data := resp["data"].(map[string]any)
				require.Equal(t, "product1", data["product_id"])
				require.Equal(t, string(model.PhaseUpcoming), data["phase"])
			}
		})
	}
}

// Test CloseAuctionHandler
func TestCloseAuctionHandler(t *testing.T) {
	router, mockService, _ := newTestRouter(t)

	tests := []struct {
		name           string
		auctionID      string
		mockSetup      func()
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:      "success",
			auctionID: "auction1",
			mockSetup: func() {
				mockService.EXPECT().
					CloseAuction(gomock.Any(), "auction1").
					Return(model.Auction{
						AuctionID: "auction1",
						Phase:     model.PhaseFinished,
						WinnerID:  "user1",
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction closed successfully",
		},
		{
			name:      "not_found",
			auctionID: "ghost",
			mockSetup: func() {
				mockService.EXPECT().
					CloseAuction(gomock.Any(), "ghost").
					Return(model.Auction{}, auctionerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			req := httptest.NewRequest(http.MethodPost, "/auctions/"+tc.auctionID+"/close", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusOK {
				data := resp["data"].(map[string]any)
				require.Equal(t, string(model.PhaseFinished), data["phase"])
				require.Equal(t, "user1", data["winner_id"])
			}
		})
	}
}

// Test GetBidsByAuctionHandler
func TestGetBidsByAuctionHandler(t *testing.T) {
	router, mockService, _ := newTestRouter(t)
	now := time.Now().UTC()

	tests := []struct {
		name           string
		auctionID      string
		mockSetup      func()
		expectedStatus int
		expectedMsg    string
		expectedCount  int
	}{
		{
			name:      "success_multiple_bids",
			auctionID: "auction1",
			mockSetup: func() {
				mockService.EXPECT().
					GetBidsForAuction("auction1").
					Return([]model.Bid{
						{BidID: uuid.NewString(), AuctionID: "auction1", UserID: "user1", Amount: 1100, CreatedAt: now},
						{BidID: uuid.NewString(), AuctionID: "auction1", UserID: "user2", Amount: 1200, CreatedAt: now},
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			expectedCount:  2,
		},
		{
			name:      "no_bids_is_empty_list",
			auctionID: "auction2",
			mockSetup: func() {
				mockService.EXPECT().
					GetBidsForAuction("auction2").
					Return(nil, auctionerrors.ErrNoBids)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			expectedCount:  0,
		},
		{
			name:      "service_generic_error",
			auctionID: "auction3",
			mockSetup: func() {
				mockService.EXPECT().
					GetBidsForAuction("auction3").
					Return(nil, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			req := httptest.NewRequest(http.MethodGet, "/auctions/"+tc.auctionID+"/bids", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusOK {
				data := resp["data"].([]any)
				require.Len(t, data, tc.expectedCount)
			}
		})
	}
}

// Test GetWinningBidHandler
func TestGetWinningBidHandler(t *testing.T) {
	router, mockService, _ := newTestRouter(t)
	now := time.Now().UTC()

	tests := []struct {
		name           string
		auctionID      string
		mockSetup      func()
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:      "success",
			auctionID: "auction1",
			mockSetup: func() {
				mockService.EXPECT().
					GetWinningBid("auction1").
					Return(model.Bid{BidID: uuid.NewString(), AuctionID: "auction1", UserID: "user2", Amount: 1200, CreatedAt: now}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "winning bid retrieved successfully",
		},
		{
			name:      "no_bids",
			auctionID: "auction2",
			mockSetup: func() {
				mockService.EXPECT().
					GetWinningBid("auction2").
					Return(model.Bid{}, auctionerrors.ErrNoBids)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "no winning bid found",
		},
		{
			name:      "auction_missing",
			auctionID: "ghost",
			mockSetup: func() {
				mockService.EXPECT().
					GetWinningBid("ghost").
					Return(model.Bid{}, auctionerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			req := httptest.NewRequest(http.MethodGet, "/auctions/"+tc.auctionID+"/winning", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusOK {
				data := resp["data"].(map[string]any)
				require.Equal(t, "user2", data["user_id"])
				require.Equal(t, 1200.0, data["amount"])
			}
		})
	}
}

// Test GetAuctionsByUserHandler
func TestGetAuctionsByUserHandler(t *testing.T) {
	router, mockService, _ := newTestRouter(t)
	now := time.Now().UTC()

	tests := []struct {
		name           string
		userID         string
		mockSetup      func()
		expectedStatus int
		expectedCount  int
	}{
		{
			name:   "success",
			userID: "user1",
			mockSetup: func() {
				mockService.EXPECT().
					GetAuctionsByUser("user1").
					Return([]model.Auction{
						{AuctionID: "auction1", ProductID: "product1", CategoryID: "cat1", StartTime: now, EndTime: now.Add(time.Hour), Phase: model.PhaseOngoing},
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  1,
		},
		{
			name:   "no_bids_is_empty_list",
			userID: "stranger",
			mockSetup: func() {
				mockService.EXPECT().
					GetAuctionsByUser("stranger").
					Return(nil, auctionerrors.ErrUserNoBids)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			req := httptest.NewRequest(http.MethodGet, "/users/"+tc.userID+"/auctions", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			data := resp["data"].([]any)
			require.Len(t, data, tc.expectedCount)
		})
	}
}

// Test LiveHandler query validation
func TestLiveHandler_RejectsBadPageContext(t *testing.T) {
	router, _, _ := newTestRouter(t)

	tests := []struct {
		name   string
		target string
	}{
		{"unknown_page", "/live?page=dashboard"},
		{"category_without_id", "/live?page=category"},
		{"auction_without_id", "/live?page=auction"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// closeNotifyRecorder adds the http.CloseNotifier method that gin's
// Context.Stream requires and httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

// Test LiveHandler streaming
func TestLiveHandler_StreamsMatchingEvents(t *testing.T) {
	router, _, registry := newTestRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/live?page=auction&auction_id=auction1", nil).WithContext(ctx)
	w := newCloseNotifyRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool {
		return registry.Count() == 1
	}, time.Second, 5*time.Millisecond)

	ev := model.AuctionEvent{
		Type:      model.EventBidUpdate,
		AuctionID: "auction1",
		Amount:    1100,
		BidderID:  "user1",
		Timestamp: time.Now().UTC(),
	}
	require.Equal(t, 1, registry.Deliver(events.Scope{Kind: events.ScopeAuction, ID: "auction1"}, ev))

	// let the stream loop drain the buffered event before disconnecting
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not stop after client disconnect")
	}

	require.Equal(t, 0, registry.Count(), "connection must be unregistered on disconnect")
	require.Contains(t, w.Body.String(), "BID_UPDATE")
	require.Contains(t, w.Body.String(), `"amount":1100`)
}
