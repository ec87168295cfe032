package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the order side (buy or sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind represents the type of order.
type OrderKind string

const (
	OrderKindLimit  OrderKind = "limit"
	OrderKindMarket OrderKind = "market"
)

// Valid reports whether k is one of the known order kinds.
func (k OrderKind) Valid() bool {
	return k == OrderKindLimit || k == OrderKindMarket
}

// OrderStatus represents the lifecycle state of an order as seen by the ledger.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	// OrderStatusUnfilled marks a market order whose remainder was dropped
	// because it could not rest.
	OrderStatusUnfilled OrderStatus = "unfilled"
	// OrderStatusRejected marks an order the engine refused after it was
	// recorded, e.g. one that would overflow its price level's volume.
	OrderStatusRejected OrderStatus = "rejected"
)

// Order is an incoming order. The matching engine never mutates it.
// Price is ignored for market orders.
type Order struct {
	OrderID  string          `json:"order_id"`
	ClientID string          `json:"client_id"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Kind     OrderKind       `json:"kind"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderRecord is the order ledger's view of an order: the incoming order plus
// its fill state.
type OrderRecord struct {
	Order
	FilledQuantity    int64       `json:"filled_quantity"`
	RemainingQuantity int64       `json:"remaining_quantity"`
	Status            OrderStatus `json:"status"`
	SequenceID        uint64      `json:"sequence_id"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Execution represents a trade between a resting (maker) order and an
// incoming (taker) order.
type Execution struct {
	ExecID         string          `json:"exec_id"`
	Symbol         string          `json:"symbol"`
	MakerID        string          `json:"maker_id"`
	TakerID        string          `json:"taker_id"`
	MakerOrderID   string          `json:"maker_order_id"`
	TakerOrderID   string          `json:"taker_order_id"`
	TakerSide      Side            `json:"taker_side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int64           `json:"quantity"`
	MakerRemaining int64           `json:"maker_remaining"`
	Timestamp      time.Time       `json:"timestamp"`
	SequenceID     uint64          `json:"sequence_id"`
}

// RestingOrderView is a read-only copy of a book entry.
type RestingOrderView struct {
	OrderID    string `json:"order_id"`
	ClientID   string `json:"client_id"`
	Remaining  int64  `json:"remaining"`
	SequenceID uint64 `json:"sequence_id"`
}

// LevelView is a read-only copy of one price level, orders in FIFO order.
type LevelView struct {
	Price  decimal.Decimal    `json:"price"`
	Orders []RestingOrderView `json:"orders"`
}

// BookSnapshot is a deep copy of an order book. Bids are best (highest)
// first, asks are best (lowest) first.
type BookSnapshot struct {
	Symbol string      `json:"symbol"`
	Bids   []LevelView `json:"bids"`
	Asks   []LevelView `json:"asks"`
}

// MatchResult is the outcome of submitting one order to a matching engine.
type MatchResult struct {
	Symbol     string       `json:"symbol"`
	OrderID    string       `json:"order_id"`
	SequenceID uint64       `json:"sequence_id"`
	Executions []*Execution `json:"executions"`
	Filled     int64        `json:"filled"`
	Remaining  int64        `json:"remaining"`
	// Rested is true when the remainder was added to the book at RestPrice.
	Rested    bool            `json:"rested"`
	RestPrice decimal.Decimal `json:"rest_price"`
	Book      *BookSnapshot   `json:"book"`
}

// Candlestick represents OHLCV data for a time interval.
type Candlestick struct {
	Symbol    string          `json:"symbol"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
	Interval  string          `json:"interval"` // e.g. "1m", "5m"
}

// L2OrderBook represents an aggregated L2 order book snapshot. SequenceID is
// the inbound sequence of the last order applied to the book, so consumers of
// cached depth can discard stale updates.
type L2OrderBook struct {
	Symbol     string       `json:"symbol"`
	SequenceID uint64       `json:"sequence_id"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
}

// PriceLevel represents an aggregated price level in the L2 order book.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int             `json:"orders"`
}

// ExecutionEvent carries the outcome of one placed order to downstream
// consumers (market data, execution feed, book cache).
type ExecutionEvent struct {
	Taker  *OrderRecord
	Result *MatchResult
	Depth  *L2OrderBook
}
