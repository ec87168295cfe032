package matching

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/orderbook"
	"github.com/nathanyu/matching-engine/internal/sequencer"
)

// MarketRemainder decides what happens to the unfilled part of a market order
// once the opposite side of the book is exhausted.
type MarketRemainder int

const (
	// RestAtLastPrice rests the remainder at the price of the order's last
	// execution.
	RestAtLastPrice MarketRemainder = iota
	// DiscardRemainder reports the remainder as unfilled and leaves the book
	// untouched.
	DiscardRemainder
)

func (m MarketRemainder) String() string {
	switch m {
	case RestAtLastPrice:
		return "rest"
	case DiscardRemainder:
		return "discard"
	default:
		return fmt.Sprintf("MarketRemainder(%d)", int(m))
	}
}

// ParseMarketRemainder parses "rest" or "discard".
func ParseMarketRemainder(s string) (MarketRemainder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rest", "":
		return RestAtLastPrice, nil
	case "discard":
		return DiscardRemainder, nil
	default:
		return 0, fmt.Errorf("unknown market remainder policy %q", s)
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithMarketRemainder sets the market order remainder policy.
func WithMarketRemainder(policy MarketRemainder) Option {
	return func(e *Engine) {
		e.remainder = policy
	}
}

// WithClock overrides the clock used to timestamp executions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine matches orders for a single instrument against its order book.
// All methods are safe for concurrent use; calls are serialized on the
// engine's own lock so different instruments never contend.
type Engine struct {
	mu        sync.Mutex
	symbol    string
	book      *orderbook.Book
	seq       *sequencer.Sequencer
	remainder MarketRemainder
	now       func() time.Time
}

// NewEngine creates an engine with an empty book for symbol.
func NewEngine(symbol string, opts ...Option) *Engine {
	e := &Engine{
		symbol: symbol,
		book:   orderbook.New(symbol),
		seq:    sequencer.New(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Symbol returns the instrument this engine matches.
func (e *Engine) Symbol() string {
	return e.symbol
}

// Validate checks an order without touching any book.
func (e *Engine) Validate(order *domain.Order) error {
	if order == nil {
		return fmt.Errorf("nil order: %w", domain.ErrMissingIdentifier)
	}
	if order.OrderID == "" || order.ClientID == "" {
		return fmt.Errorf("order %q: %w", order.OrderID, domain.ErrMissingIdentifier)
	}
	if order.Symbol != e.symbol {
		return fmt.Errorf("order %s for %q on %q engine: %w", order.OrderID, order.Symbol, e.symbol, domain.ErrInstrumentMismatch)
	}
	if !order.Side.Valid() {
		return fmt.Errorf("order %s side %q: %w", order.OrderID, order.Side, domain.ErrInvalidSide)
	}
	if !order.Kind.Valid() {
		return fmt.Errorf("order %s kind %q: %w", order.OrderID, order.Kind, domain.ErrInvalidKind)
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("order %s quantity %d: %w", order.OrderID, order.Quantity, domain.ErrInvalidQuantity)
	}
	if order.Kind == domain.OrderKindLimit && !order.Price.IsPositive() {
		return fmt.Errorf("order %s price %s: %w", order.OrderID, order.Price, domain.ErrInvalidPrice)
	}
	return nil
}

// Submit validates order and, if valid, matches it against the book. A
// rejected order leaves the book unchanged. The returned result holds the
// executions in the order they occurred and a copy of the resulting book.
func (e *Engine) Submit(order *domain.Order) (*domain.MatchResult, error) {
	if err := e.Validate(order); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Matching never touches the order's own side, so a limit order whose full
	// quantity fits at its price level can always rest its remainder there.
	if order.Kind == domain.OrderKindLimit && !e.book.CanRest(order.Side, order.Price, order.Quantity) {
		return nil, fmt.Errorf("order %s quantity %d overflows %s level volume: %w",
			order.OrderID, order.Quantity, order.Price, domain.ErrInvalidQuantity)
	}

	result := &domain.MatchResult{
		Symbol:     e.symbol,
		OrderID:    order.OrderID,
		SequenceID: e.seq.NextInbound(),
	}

	remaining, lastPrice := e.match(order, result)
	e.seq.StampExecutions(result.Executions)

	result.Filled = order.Quantity - remaining
	result.Remaining = remaining

	if remaining > 0 {
		if restPrice, ok := e.restPrice(order, lastPrice, len(result.Executions) > 0); ok {
			e.book.Add(order.Side, &orderbook.Resting{
				OrderID:    order.OrderID,
				ClientID:   order.ClientID,
				Remaining:  remaining,
				Price:      restPrice,
				SequenceID: result.SequenceID,
			})
			result.Rested = true
			result.RestPrice = restPrice
		}
	}

	result.Book = e.book.Snapshot()
	return result, nil
}

// match walks the opposite side in priority order, filling order against
// resting orders FIFO within each level. It returns the unfilled quantity and
// the price of the last execution.
func (e *Engine) match(order *domain.Order, result *domain.MatchResult) (int64, decimal.Decimal) {
	opposite := order.Side.Opposite()
	remaining := order.Quantity
	var lastPrice decimal.Decimal
	now := e.now()

	for remaining > 0 {
		level := e.book.Best(opposite)
		if level == nil || !crosses(order, level.Price) {
			break
		}

		price := executionPrice(order, level.Price)
		for remaining > 0 && level.Len() > 0 {
			maker := level.Front()
			qty := min(remaining, maker.Remaining)
			level.Fill(qty)
			remaining -= qty
			lastPrice = price

			result.Executions = append(result.Executions, &domain.Execution{
				Symbol:         e.symbol,
				MakerID:        maker.ClientID,
				TakerID:        order.ClientID,
				MakerOrderID:   maker.OrderID,
				TakerOrderID:   order.OrderID,
				TakerSide:      order.Side,
				Price:          price,
				Quantity:       qty,
				MakerRemaining: maker.Remaining,
				Timestamp:      now,
			})
		}

		if level.Len() == 0 {
			e.book.RemoveLevel(opposite, level.Price)
		}
	}

	return remaining, lastPrice
}

// restPrice returns the price the unfilled remainder should rest at, if any.
func (e *Engine) restPrice(order *domain.Order, lastPrice decimal.Decimal, traded bool) (decimal.Decimal, bool) {
	if order.Kind == domain.OrderKindLimit {
		return order.Price, true
	}
	// A market order with no fills has no traded price to rest at.
	if !traded || e.remainder == DiscardRemainder {
		return decimal.Decimal{}, false
	}
	return lastPrice, true
}

// crosses reports whether order may trade against a level at levelPrice.
// Market orders always cross.
func crosses(order *domain.Order, levelPrice decimal.Decimal) bool {
	if order.Kind == domain.OrderKindMarket {
		return true
	}
	if order.Side == domain.SideBuy {
		return levelPrice.LessThanOrEqual(order.Price)
	}
	return levelPrice.GreaterThanOrEqual(order.Price)
}

// executionPrice is max(level, limit) for a buy and min(level, limit) for a
// sell. Market orders trade at the level price.
func executionPrice(order *domain.Order, levelPrice decimal.Decimal) decimal.Decimal {
	if order.Kind == domain.OrderKindMarket {
		return levelPrice
	}
	if order.Side == domain.SideBuy {
		return decimal.Max(levelPrice, order.Price)
	}
	return decimal.Min(levelPrice, order.Price)
}

// Snapshot returns a deep copy of the current book.
func (e *Engine) Snapshot() *domain.BookSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Snapshot()
}

// Depth returns an aggregated L2 view of the book.
func (e *Engine) Depth(depth int) *domain.L2OrderBook {
	e.mu.Lock()
	defer e.mu.Unlock()
	l2 := e.book.Depth(depth)
	l2.SequenceID = e.seq.CurrentInboundSeq()
	return l2
}

// LevelCounts returns the number of bid and ask price levels.
func (e *Engine) LevelCounts() (bids, asks int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Len(domain.SideBuy), e.book.Len(domain.SideSell)
}

// Equal reports whether the engine's book matches other. Intended for tests.
func (e *Engine) Equal(other *orderbook.Book) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Equal(other)
}
