package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrSecurityNotFound = errors.New("security not found")
	ErrSecurityExists   = errors.New("security already listed")
	ErrInvalidSymbol    = errors.New("invalid symbol")
)

// DefaultSymbols is the catalog seeded at market open when none is configured.
var DefaultSymbols = []string{"DEW", "AAPL", "MSFT", "GOOGL"}

// Security is a tradable instrument.
type Security struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
}

// Catalog is the set of securities open for trading. Listing a security
// notifies the registered listener so a book can be created for it.
type Catalog struct {
	mu       sync.RWMutex
	byID     map[int64]*Security
	bySymbol map[string]*Security
	nextID   int64
	onList   func(symbol string)
}

// New creates a catalog listing symbols with IDs assigned in order from zero.
// Duplicate or empty symbols are skipped.
func New(symbols []string) *Catalog {
	c := &Catalog{
		byID:     make(map[int64]*Security),
		bySymbol: make(map[string]*Security),
	}
	for _, symbol := range symbols {
		_, _ = c.add(symbol)
	}
	return c
}

// OnList registers fn to be called for every security already listed and for
// every security added later.
func (c *Catalog) OnList(fn func(symbol string)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onList = fn
	for _, symbol := range c.symbolsLocked() {
		fn(symbol)
	}
}

// NormalizeSymbol trims and upper-cases a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func validSymbol(symbol string) bool {
	if symbol == "" || len(symbol) > 12 {
		return false
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// add lists symbol. It must be called with c.mu held. The listener runs
// before the security is visible, so anyone who can see a security can also
// trade it.
func (c *Catalog) add(symbol string) (Security, error) {
	symbol = NormalizeSymbol(symbol)
	if !validSymbol(symbol) {
		return Security{}, fmt.Errorf("%q: %w", symbol, ErrInvalidSymbol)
	}
	if existing, ok := c.bySymbol[symbol]; ok {
		return *existing, fmt.Errorf("%s: %w", symbol, ErrSecurityExists)
	}
	if c.onList != nil {
		c.onList(symbol)
	}
	sec := &Security{ID: c.nextID, Symbol: symbol}
	c.nextID++
	c.byID[sec.ID] = sec
	c.bySymbol[symbol] = sec
	return *sec, nil
}

// Add lists a new security and notifies the listener. The listener must not
// call back into the catalog.
func (c *Catalog) Add(symbol string) (Security, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(symbol)
}

// Get returns the security listed under symbol.
func (c *Catalog) Get(symbol string) (Security, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sec, ok := c.bySymbol[NormalizeSymbol(symbol)]
	if !ok {
		return Security{}, fmt.Errorf("%q: %w", symbol, ErrSecurityNotFound)
	}
	return *sec, nil
}

// GetByID returns the security with the given ID.
func (c *Catalog) GetByID(id int64) (Security, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sec, ok := c.byID[id]
	if !ok {
		return Security{}, fmt.Errorf("id %d: %w", id, ErrSecurityNotFound)
	}
	return *sec, nil
}

// List returns every security ordered by ID.
func (c *Catalog) List() []Security {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Security, 0, len(c.byID))
	for _, sec := range c.byID {
		result = append(result, *sec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Symbols returns the listed symbols ordered by ID.
func (c *Catalog) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.symbolsLocked()
}

func (c *Catalog) symbolsLocked() []string {
	ids := make([]int64, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	symbols := make([]string, len(ids))
	for i, id := range ids {
		symbols[i] = c.byID[id].Symbol
	}
	return symbols
}
