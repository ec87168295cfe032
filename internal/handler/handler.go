package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nathanyu/matching-engine/internal/catalog"
	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/marketdata"
	"github.com/nathanyu/matching-engine/internal/ordermanager"
	"github.com/nathanyu/matching-engine/internal/repository"
	"github.com/nathanyu/matching-engine/internal/router"
)

// Handler holds the HTTP handler dependencies.
type Handler struct {
	manager   *ordermanager.Manager
	router    *router.Router
	catalog   *catalog.Catalog
	publisher *marketdata.Publisher
}

// NewHandler creates a new Handler.
func NewHandler(manager *ordermanager.Manager, r *router.Router, c *catalog.Catalog, publisher *marketdata.Publisher) *Handler {
	return &Handler{
		manager:   manager,
		router:    r,
		catalog:   c,
		publisher: publisher,
	}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/orders", h.PlaceOrder)
		v1.GET("/orders", h.ListOrders)
		v1.GET("/orders/:id", h.GetOrder)
		v1.GET("/securities", h.ListSecurities)
		v1.GET("/securities/:symbol", h.GetSecurity)
		v1.POST("/securities", h.AddSecurity)
		v1.GET("/orderbook/:symbol", h.GetOrderBook)
		v1.GET("/executions", h.GetExecutions)
		v1.GET("/marketdata/orderBook/L2", h.GetL2OrderBook)
		v1.GET("/marketdata/candles", h.GetCandles)
	}
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "matching-engine",
		"instruments": h.router.Instruments(),
	})
}

// errorStatus maps a service error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case domain.IsValidationError(err),
		errors.Is(err, catalog.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownInstrument),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, catalog.ErrSecurityNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrSecurityExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			slog.String("component", "handler"),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// PlaceOrderRequest is the request body for placing an order. Price is
// required for limit orders and ignored for market orders.
type PlaceOrderRequest struct {
	ClientID string              `json:"client_id" binding:"required"`
	Symbol   string              `json:"symbol" binding:"required"`
	Side     domain.Side         `json:"side" binding:"required"`
	Kind     domain.OrderKind    `json:"kind"`
	Quantity int64               `json:"quantity" binding:"required"`
	Price    decimal.NullDecimal `json:"price"`
}

// PlaceOrderResponse is the created order with the outcome of matching it.
type PlaceOrderResponse struct {
	Order      *domain.OrderRecord  `json:"order"`
	Executions []*domain.Execution  `json:"executions"`
	Rested     bool                 `json:"rested"`
	Book       *domain.BookSnapshot `json:"book"`
}

// PlaceOrder handles POST /v1/orders.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind == "" {
		req.Kind = domain.OrderKindLimit
	}

	input := ordermanager.PlaceOrderInput{
		ClientID: req.ClientID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Kind:     req.Kind,
		Quantity: req.Quantity,
	}
	if req.Price.Valid {
		input.Price = req.Price.Decimal
	}

	order, result, err := h.manager.PlaceOrder(c.Request.Context(), input)
	if err != nil {
		abortWithError(c, err)
		return
	}

	executions := result.Executions
	if executions == nil {
		executions = []*domain.Execution{}
	}
	c.JSON(http.StatusCreated, PlaceOrderResponse{
		Order:      order,
		Executions: executions,
		Rested:     result.Rested,
		Book:       result.Book,
	})
}

// ListOrders handles GET /v1/orders.
func (h *Handler) ListOrders(c *gin.Context) {
	filter := repository.OrderFilter{
		Symbol:   c.Query("symbol"),
		ClientID: c.Query("client_id"),
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	orders, err := h.manager.ListOrders(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetOrder handles GET /v1/orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.manager.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListSecurities handles GET /v1/securities.
func (h *Handler) ListSecurities(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.List())
}

// GetSecurity handles GET /v1/securities/:symbol. A numeric path segment is
// looked up as a security ID.
func (h *Handler) GetSecurity(c *gin.Context) {
	key := c.Param("symbol")

	var (
		sec catalog.Security
		err error
	)
	if id, convErr := strconv.ParseInt(key, 10, 64); convErr == nil {
		sec, err = h.catalog.GetByID(id)
	} else {
		sec, err = h.catalog.Get(key)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sec)
}

// AddSecurityRequest is the request body for listing a security.
type AddSecurityRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

// AddSecurity handles POST /v1/securities.
func (h *Handler) AddSecurity(c *gin.Context) {
	var req AddSecurityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sec, err := h.catalog.Add(req.Symbol)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sec)
}

// GetOrderBook handles GET /v1/orderbook/:symbol.
func (h *Handler) GetOrderBook(c *gin.Context) {
	engine, err := h.router.Engine(catalog.NormalizeSymbol(c.Param("symbol")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, engine.Snapshot())
}

// GetExecutions handles GET /v1/executions.
func (h *Handler) GetExecutions(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol != "" {
		symbol = catalog.NormalizeSymbol(symbol)
	}
	orderID := c.Query("order_id")

	var since time.Time
	if sinceStr := c.Query("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since format, use RFC3339"})
			return
		}
		since = parsed
	}

	executions := h.publisher.GetExecutions(symbol, orderID, since)
	if executions == nil {
		executions = []*domain.Execution{}
	}
	c.JSON(http.StatusOK, executions)
}

// GetL2OrderBook handles GET /v1/marketdata/orderBook/L2.
func (h *Handler) GetL2OrderBook(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	depth, err := strconv.Atoi(c.DefaultQuery("depth", "10"))
	if err != nil || depth <= 0 {
		depth = 10
	}

	engine, err := h.router.Engine(catalog.NormalizeSymbol(symbol))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, engine.Depth(depth))
}

// GetCandles handles GET /v1/marketdata/candles.
func (h *Handler) GetCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count <= 0 {
		count = 100
	}

	candles := h.publisher.GetCandles(catalog.NormalizeSymbol(symbol), count)
	if candles == nil {
		candles = []*domain.Candlestick{}
	}
	c.JSON(http.StatusOK, candles)
}
