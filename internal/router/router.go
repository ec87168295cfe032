package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/matching"
)

// Router owns exactly one matching engine per listed instrument. Submitting
// an order for an instrument that was never listed fails with
// domain.ErrUnknownInstrument; engines are only created by Listen.
type Router struct {
	mu      sync.RWMutex
	engines map[string]*matching.Engine
	opts    []matching.Option
}

// New creates a router and lists every symbol in symbols. opts are applied to
// every engine the router creates.
func New(symbols []string, opts ...matching.Option) *Router {
	r := &Router{
		engines: make(map[string]*matching.Engine, len(symbols)),
		opts:    opts,
	}
	for _, symbol := range symbols {
		r.Listen(symbol)
	}
	return r
}

// Listen returns the engine for symbol, creating it if this is the first
// listing. Repeated calls return the same engine.
func (r *Router) Listen(symbol string) *matching.Engine {
	r.mu.RLock()
	engine, ok := r.engines[symbol]
	r.mu.RUnlock()
	if ok {
		return engine
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if engine, ok := r.engines[symbol]; ok {
		return engine
	}
	engine = matching.NewEngine(symbol, r.opts...)
	r.engines[symbol] = engine
	return engine
}

// Engine returns the engine dedicated to symbol.
func (r *Router) Engine(symbol string) (*matching.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[symbol]
	if !ok {
		return nil, fmt.Errorf("instrument %q: %w", symbol, domain.ErrUnknownInstrument)
	}
	return engine, nil
}

// Submit routes order to its instrument's engine.
func (r *Router) Submit(order *domain.Order) (*domain.MatchResult, error) {
	if order == nil {
		return nil, fmt.Errorf("nil order: %w", domain.ErrMissingIdentifier)
	}
	engine, err := r.Engine(order.Symbol)
	if err != nil {
		return nil, err
	}
	return engine.Submit(order)
}

// Instruments returns the listed symbols in sorted order.
func (r *Router) Instruments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.engines))
	for symbol := range r.engines {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
