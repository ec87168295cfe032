package orderbook

import (
	"container/list"
	"math"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// btreeDegree is the branching factor of the price level trees.
const btreeDegree = 16

// Resting is an order entry held by the book. Remaining is decremented in
// place as incoming orders match against it.
type Resting struct {
	OrderID    string
	ClientID   string
	Remaining  int64
	Price      decimal.Decimal
	SequenceID uint64 // inbound sequence of the order that rested
}

// Level is one price level: a FIFO queue of resting orders at the same price.
type Level struct {
	Price       decimal.Decimal
	TotalVolume int64
	orders      *list.List // of *Resting
}

func newLevel(price decimal.Decimal) *Level {
	return &Level{Price: price, orders: list.New()}
}

// Len returns the number of resting orders at this level.
func (l *Level) Len() int {
	return l.orders.Len()
}

// Front returns the oldest resting order at this level, or nil if empty.
func (l *Level) Front() *Resting {
	front := l.orders.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*Resting)
}

// CanAccept reports whether qty more can rest here without overflowing the
// level's total volume.
func (l *Level) CanAccept(qty int64) bool {
	return qty >= 0 && l.TotalVolume <= math.MaxInt64-qty
}

// Push appends r to the tail of the queue. It becomes the youngest order at
// this price.
func (l *Level) Push(r *Resting) {
	l.TotalVolume += r.Remaining
	l.orders.PushBack(r)
}

// Fill trades qty against the front order, removing it once fully consumed.
// qty must not exceed the front order's remaining quantity.
func (l *Level) Fill(qty int64) *Resting {
	front := l.orders.Front()
	if front == nil {
		return nil
	}
	r := front.Value.(*Resting)
	r.Remaining -= qty
	l.TotalVolume -= qty
	if r.Remaining <= 0 {
		l.orders.Remove(front)
	}
	return r
}

// Each calls fn for every resting order in arrival order.
func (l *Level) Each(fn func(r *Resting)) {
	for e := l.orders.Front(); e != nil; e = e.Next() {
		fn(e.Value.(*Resting))
	}
}

func levelLess(a, b *Level) bool {
	return a.Price.LessThan(b.Price)
}

// Book holds both sides of the order book for a single instrument. Each side
// is a B-tree of price levels keyed by price. Book is not safe for concurrent
// use; the matching engine owning it serializes access.
type Book struct {
	Symbol string
	bids   *btree.BTreeG[*Level]
	asks   *btree.BTreeG[*Level]
}

// New creates an empty book for symbol.
func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		bids:   btree.NewG(btreeDegree, levelLess),
		asks:   btree.NewG(btreeDegree, levelLess),
	}
}

func (b *Book) side(side domain.Side) *btree.BTreeG[*Level] {
	if side == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// Level returns the level at price on side, or nil if none exists.
func (b *Book) Level(side domain.Side, price decimal.Decimal) *Level {
	level, ok := b.side(side).Get(&Level{Price: price})
	if !ok {
		return nil
	}
	return level
}

// LevelOrCreate returns the level at price on side, creating it if absent.
func (b *Book) LevelOrCreate(side domain.Side, price decimal.Decimal) *Level {
	if level := b.Level(side, price); level != nil {
		return level
	}
	level := newLevel(price)
	b.side(side).ReplaceOrInsert(level)
	return level
}

// RemoveLevel deletes the level at price if it holds no orders. It reports
// whether a level was removed.
func (b *Book) RemoveLevel(side domain.Side, price decimal.Decimal) bool {
	level := b.Level(side, price)
	if level == nil || level.Len() > 0 {
		return false
	}
	b.side(side).Delete(level)
	return true
}

// CanRest reports whether qty can be added at price on side without
// overflowing that level's total volume.
func (b *Book) CanRest(side domain.Side, price decimal.Decimal, qty int64) bool {
	level := b.Level(side, price)
	if level == nil {
		return qty >= 0
	}
	return level.CanAccept(qty)
}

// Add appends a resting order to the tail of its price level on side. The
// caller checks CanRest first.
func (b *Book) Add(side domain.Side, r *Resting) {
	b.LevelOrCreate(side, r.Price).Push(r)
}

// Best returns the top of book for side: the highest bid or the lowest ask.
func (b *Book) Best(side domain.Side) *Level {
	var (
		level *Level
		ok    bool
	)
	if side == domain.SideBuy {
		level, ok = b.bids.Max()
	} else {
		level, ok = b.asks.Min()
	}
	if !ok {
		return nil
	}
	return level
}

// Walk visits the levels of side in matching priority order: bids from the
// highest price down, asks from the lowest price up. Returning false stops the
// walk. fn must not add or remove levels.
func (b *Book) Walk(side domain.Side, fn func(level *Level) bool) {
	if side == domain.SideBuy {
		b.bids.Descend(fn)
		return
	}
	b.asks.Ascend(fn)
}

// Len returns the number of price levels on side.
func (b *Book) Len(side domain.Side) int {
	return b.side(side).Len()
}

// Volume returns the total resting quantity on side, capped at
// math.MaxInt64.
func (b *Book) Volume(side domain.Side) int64 {
	var total int64
	b.Walk(side, func(level *Level) bool {
		if total > math.MaxInt64-level.TotalVolume {
			total = math.MaxInt64
			return false
		}
		total += level.TotalVolume
		return true
	})
	return total
}

// Equal reports whether two books hold the same levels with the same orders
// in the same sequence.
func (b *Book) Equal(other *Book) bool {
	if other == nil {
		return false
	}
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		if !sideEqual(b.levels(side), other.levels(side)) {
			return false
		}
	}
	return true
}

func (b *Book) levels(side domain.Side) []*Level {
	levels := make([]*Level, 0, b.Len(side))
	b.Walk(side, func(level *Level) bool {
		levels = append(levels, level)
		return true
	})
	return levels
}

func sideEqual(a, b []*Level) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) || a[i].Len() != b[i].Len() {
			return false
		}
		x, y := a[i].orders.Front(), b[i].orders.Front()
		for x != nil && y != nil {
			rx, ry := x.Value.(*Resting), y.Value.(*Resting)
			if rx.OrderID != ry.OrderID || rx.ClientID != ry.ClientID || rx.Remaining != ry.Remaining {
				return false
			}
			x, y = x.Next(), y.Next()
		}
	}
	return true
}

// Snapshot returns a deep copy of the book.
func (b *Book) Snapshot() *domain.BookSnapshot {
	return &domain.BookSnapshot{
		Symbol: b.Symbol,
		Bids:   b.levelViews(domain.SideBuy),
		Asks:   b.levelViews(domain.SideSell),
	}
}

func (b *Book) levelViews(side domain.Side) []domain.LevelView {
	views := make([]domain.LevelView, 0, b.Len(side))
	b.Walk(side, func(level *Level) bool {
		view := domain.LevelView{
			Price:  level.Price,
			Orders: make([]domain.RestingOrderView, 0, level.Len()),
		}
		level.Each(func(r *Resting) {
			view.Orders = append(view.Orders, domain.RestingOrderView{
				OrderID:    r.OrderID,
				ClientID:   r.ClientID,
				Remaining:  r.Remaining,
				SequenceID: r.SequenceID,
			})
		})
		views = append(views, view)
		return true
	})
	return views
}

// Depth returns an aggregated L2 view with at most depth levels per side.
// A non-positive depth returns every level.
func (b *Book) Depth(depth int) *domain.L2OrderBook {
	return &domain.L2OrderBook{
		Symbol: b.Symbol,
		Bids:   aggregateLevels(b, domain.SideBuy, depth),
		Asks:   aggregateLevels(b, domain.SideSell, depth),
	}
}

func aggregateLevels(b *Book, side domain.Side, depth int) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0)
	b.Walk(side, func(level *Level) bool {
		if depth > 0 && len(levels) >= depth {
			return false
		}
		levels = append(levels, domain.PriceLevel{
			Price:    level.Price,
			Quantity: level.TotalVolume,
			Orders:   level.Len(),
		})
		return true
	})
	return levels
}
