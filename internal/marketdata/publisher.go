package marketdata

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nathanyu/matching-engine/internal/domain"
)

const (
	ringBufferCapacity = 100
	defaultInterval    = "1m"
	// maxExecutionLog bounds the in-memory execution history.
	maxExecutionLog = 10_000
)

// candleState tracks the current (building) candlestick for a symbol.
type candleState struct {
	current *domain.Candlestick
	hasData bool
}

// RingBuffer is a fixed-size circular buffer of candlesticks.
type RingBuffer struct {
	data  [ringBufferCapacity]*domain.Candlestick
	head  int // next write position
	count int
}

// Push adds a candlestick to the ring buffer.
func (rb *RingBuffer) Push(c *domain.Candlestick) {
	rb.data[rb.head] = c
	rb.head = (rb.head + 1) % ringBufferCapacity
	if rb.count < ringBufferCapacity {
		rb.count++
	}
}

// GetAll returns all candlesticks in chronological order.
func (rb *RingBuffer) GetAll() []*domain.Candlestick {
	return rb.GetRecent(rb.count)
}

// GetRecent returns the N most recent candlesticks, oldest first.
func (rb *RingBuffer) GetRecent(n int) []*domain.Candlestick {
	if n <= 0 || rb.count == 0 {
		return nil
	}
	n = min(n, rb.count)

	result := make([]*domain.Candlestick, n)
	start := (rb.head - n + ringBufferCapacity) % ringBufferCapacity
	for i := range n {
		result[i] = rb.data[(start+i)%ringBufferCapacity]
	}
	return result
}

// Publisher consumes execution events and maintains per-symbol candlesticks
// and a queryable execution log.
type Publisher struct {
	mu sync.RWMutex

	interval time.Duration
	candles  map[string]*RingBuffer  // completed candles
	states   map[string]*candleState // building candle
	execs    []*domain.Execution

	// ExecutionIn receives events from the order manager.
	ExecutionIn chan *domain.ExecutionEvent

	done   chan struct{}
	ticker *time.Ticker
	wg     sync.WaitGroup
}

// NewPublisher creates a market data publisher with one-minute candles.
func NewPublisher(bufferSize int) *Publisher {
	return &Publisher{
		interval:    time.Minute,
		candles:     make(map[string]*RingBuffer),
		states:      make(map[string]*candleState),
		ExecutionIn: make(chan *domain.ExecutionEvent, bufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the publisher's application loop.
func (p *Publisher) Start() {
	p.ticker = time.NewTicker(p.interval)
	p.wg.Add(1)
	go p.run()
}

// Stop shuts down the loop and waits for it to exit.
func (p *Publisher) Stop() {
	close(p.done)
	p.wg.Wait()
	if p.ticker != nil {
		p.ticker.Stop()
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	slog.Info("market data publisher started", slog.String("component", "marketdata"))
	for {
		select {
		case event := <-p.ExecutionIn:
			p.Apply(event)
		case <-p.ticker.C:
			p.rotateCandlesticks()
		case <-p.done:
			slog.Info("market data publisher stopped", slog.String("component", "marketdata"))
			return
		}
	}
}

// Apply records the executions of event and updates candlesticks.
func (p *Publisher) Apply(event *domain.ExecutionEvent) {
	if event == nil || event.Result == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, exec := range event.Result.Executions {
		p.execs = append(p.execs, exec)
		p.updateCandle(exec)
	}
	if overflow := len(p.execs) - maxExecutionLog; overflow > 0 {
		p.execs = append([]*domain.Execution(nil), p.execs[overflow:]...)
	}
}

// updateCandle folds exec into the building candle for its symbol, closing
// the previous candle first if exec falls into a later interval.
func (p *Publisher) updateCandle(exec *domain.Execution) {
	state, exists := p.states[exec.Symbol]
	if !exists {
		state = &candleState{}
		p.states[exec.Symbol] = state
	}

	bucket := exec.Timestamp.Truncate(p.interval)
	if state.hasData && bucket.After(state.current.Timestamp) {
		p.closeCandle(exec.Symbol, state)
	}

	if !state.hasData {
		state.current = &domain.Candlestick{
			Symbol:    exec.Symbol,
			Open:      exec.Price,
			High:      exec.Price,
			Low:       exec.Price,
			Close:     exec.Price,
			Volume:    exec.Quantity,
			Timestamp: bucket,
			Interval:  defaultInterval,
		}
		state.hasData = true
		return
	}

	c := state.current
	if exec.Price.GreaterThan(c.High) {
		c.High = exec.Price
	}
	if exec.Price.LessThan(c.Low) {
		c.Low = exec.Price
	}
	c.Close = exec.Price
	c.Volume += exec.Quantity
}

func (p *Publisher) closeCandle(symbol string, state *candleState) {
	rb, exists := p.candles[symbol]
	if !exists {
		rb = &RingBuffer{}
		p.candles[symbol] = rb
	}
	rb.Push(state.current)
	state.hasData = false
	state.current = nil
}

// rotateCandlesticks closes every building candle.
func (p *Publisher) rotateCandlesticks() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for symbol, state := range p.states {
		if state.hasData {
			p.closeCandle(symbol, state)
		}
	}
}

// GetCandles returns up to count completed candles for symbol followed by the
// building candle, if any.
func (p *Publisher) GetCandles(symbol string, count int) []*domain.Candlestick {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []*domain.Candlestick
	if rb, exists := p.candles[symbol]; exists {
		result = rb.GetRecent(count)
	}
	if state, exists := p.states[symbol]; exists && state.hasData {
		c := *state.current
		result = append(result, &c)
	}
	return result
}

// GetExecutions returns executions matching the filter criteria. orderID
// matches either side of the trade.
func (p *Publisher) GetExecutions(symbol, orderID string, since time.Time) []*domain.Execution {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []*domain.Execution
	for _, exec := range p.execs {
		if symbol != "" && exec.Symbol != symbol {
			continue
		}
		if orderID != "" && exec.MakerOrderID != orderID && exec.TakerOrderID != orderID {
			continue
		}
		if !since.IsZero() && exec.Timestamp.Before(since) {
			continue
		}
		result = append(result, exec)
	}
	return result
}
