package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/matching-engine/internal/catalog"
	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/marketdata"
	"github.com/nathanyu/matching-engine/internal/ordermanager"
	"github.com/nathanyu/matching-engine/internal/repository"
	"github.com/nathanyu/matching-engine/internal/router"
)

type testServer struct {
	engine    *gin.Engine
	manager   *ordermanager.Manager
	publisher *marketdata.Publisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat := catalog.New(catalog.DefaultSymbols)
	r := router.New(nil)
	cat.OnList(func(symbol string) { r.Listen(symbol) })

	manager := ordermanager.NewManager(r, repository.NewMemoryLedger(), 100)
	publisher := marketdata.NewPublisher(100)

	engine := gin.New()
	NewHandler(manager, r, cat, publisher).RegisterRoutes(engine)
	return &testServer{engine: engine, manager: manager, publisher: publisher}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// drain feeds pending execution events to the market data publisher.
func (s *testServer) drain() {
	for {
		select {
		case event := <-s.manager.Events:
			s.publisher.Apply(event)
		default:
			return
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "matching-engine")

	var body struct {
		Instruments []string `json:"instruments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Instruments, "AAPL")

	s.do(t, http.MethodPost, "/v1/securities", gin.H{"symbol": "NVDA"})
	w = s.do(t, http.MethodGet, "/health", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Instruments, "NVDA")
}

func TestPlaceOrder_MatchFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/orders", gin.H{
		"client_id": "alice", "symbol": "AAPL", "side": "sell", "kind": "limit", "quantity": 100, "price": "10.5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/orders", gin.H{
		"client_id": "bob", "symbol": "AAPL", "side": "buy", "kind": "limit", "quantity": 40, "price": 10.6,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp PlaceOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Executions, 1)
	assert.Equal(t, "alice", resp.Executions[0].MakerID)
	assert.Equal(t, "bob", resp.Executions[0].TakerID)
	assert.True(t, resp.Executions[0].Price.Equal(decimal.RequireFromString("10.6")))
	assert.Equal(t, domain.OrderStatusFilled, resp.Order.Status)
	require.Len(t, resp.Book.Asks, 1)
	assert.Equal(t, int64(60), resp.Book.Asks[0].Orders[0].Remaining)

	w = s.do(t, http.MethodGet, "/v1/orders/"+resp.Order.OrderID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/v1/orders?symbol=AAPL&client_id=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var orders []domain.OrderRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, orders[0].Status)

	s.drain()
	w = s.do(t, http.MethodGet, "/v1/executions?symbol=AAPL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var execs []domain.Execution
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &execs))
	assert.Len(t, execs, 1)

	w = s.do(t, http.MethodGet, "/v1/marketdata/candles?symbol=AAPL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var candles []domain.Candlestick
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &candles))
	require.Len(t, candles, 1)
	assert.Equal(t, int64(40), candles[0].Volume)
}

func TestPlaceOrder_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body gin.H
		code int
	}{
		{"malformed", gin.H{"symbol": "AAPL"}, http.StatusBadRequest},
		{"bad side", gin.H{"client_id": "a", "symbol": "AAPL", "side": "hold", "quantity": 1, "price": "1"}, http.StatusBadRequest},
		{"bad kind", gin.H{"client_id": "a", "symbol": "AAPL", "side": "buy", "kind": "stop", "quantity": 1, "price": "1"}, http.StatusBadRequest},
		{"negative quantity", gin.H{"client_id": "a", "symbol": "AAPL", "side": "buy", "quantity": -1, "price": "1"}, http.StatusBadRequest},
		{"missing limit price", gin.H{"client_id": "a", "symbol": "AAPL", "side": "buy", "quantity": 1}, http.StatusBadRequest},
		{"unknown symbol", gin.H{"client_id": "a", "symbol": "TSLA", "side": "buy", "quantity": 1, "price": "1"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/v1/orders", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestPlaceOrder_MarketWithoutPrice(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/v1/orders", gin.H{
		"client_id": "alice", "symbol": "MSFT", "side": "buy", "quantity": 5, "price": "300",
	})

	w := s.do(t, http.MethodPost, "/v1/orders", gin.H{
		"client_id": "bob", "symbol": "MSFT", "side": "sell", "kind": "market", "quantity": 5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp PlaceOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Executions, 1)
	assert.True(t, resp.Executions[0].Price.Equal(decimal.NewFromInt(300)))
}

func TestGetOrder_NotFound(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/v1/orders/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSecurities(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/securities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []catalog.Security
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 4)

	w = s.do(t, http.MethodGet, "/v1/securities/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "AAPL")

	w = s.do(t, http.MethodGet, "/v1/securities/googl", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/v1/securities/TSLA", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/v1/securities", gin.H{"symbol": "tsla"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/v1/securities", gin.H{"symbol": "TSLA"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/v1/securities", gin.H{"symbol": "bad symbol"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A newly listed security is immediately tradable.
	w = s.do(t, http.MethodPost, "/v1/orders", gin.H{
		"client_id": "a", "symbol": "TSLA", "side": "buy", "quantity": 1, "price": "200",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestOrderBookEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/v1/orders", gin.H{"client_id": "a", "symbol": "DEW", "side": "buy", "quantity": 5, "price": "9"})
	s.do(t, http.MethodPost, "/v1/orders", gin.H{"client_id": "b", "symbol": "DEW", "side": "buy", "quantity": 7, "price": "9"})
	s.do(t, http.MethodPost, "/v1/orders", gin.H{"client_id": "c", "symbol": "DEW", "side": "sell", "quantity": 3, "price": "11"})

	w := s.do(t, http.MethodGet, "/v1/orderbook/dew", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var book domain.BookSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Bids[0].Orders, 2)
	assert.Equal(t, "a", book.Bids[0].Orders[0].ClientID)
	require.Len(t, book.Asks, 1)

	w = s.do(t, http.MethodGet, "/v1/marketdata/orderBook/L2?symbol=DEW&depth=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var l2 domain.L2OrderBook
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l2))
	require.Len(t, l2.Bids, 1)
	assert.Equal(t, int64(12), l2.Bids[0].Quantity)

	w = s.do(t, http.MethodGet, "/v1/orderbook/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/marketdata/orderBook/L2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetExecutions_BadSince(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/v1/executions?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
