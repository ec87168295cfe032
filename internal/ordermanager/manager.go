package ordermanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nathanyu/matching-engine/internal/catalog"
	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/repository"
	"github.com/nathanyu/matching-engine/internal/router"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

// defaultDepth is the number of L2 levels attached to each execution event.
const defaultDepth = 10

// PlaceOrderInput is an order request before it is assigned an ID.
type PlaceOrderInput struct {
	ClientID string
	Symbol   string
	Side     domain.Side
	Kind     domain.OrderKind
	Quantity int64
	Price    decimal.Decimal
}

// Manager accepts orders from the API, records them in the ledger, submits
// them to the matching engines and turns match results into order state
// updates and execution events.
//
// Placement is serialized per instrument so ledger updates and events for one
// instrument follow match order. Different instruments proceed in parallel.
type Manager struct {
	router *router.Router
	ledger repository.OrderLedger

	locks sync.Map // symbol -> *sync.Mutex

	// Events carries one event per placed order to downstream consumers.
	Events chan *domain.ExecutionEvent

	closeMu sync.RWMutex
	closed  bool

	newID func() string
	now   func() time.Time
}

// NewManager creates an order manager.
func NewManager(r *router.Router, ledger repository.OrderLedger, bufferSize int) *Manager {
	return &Manager{
		router: r,
		ledger: ledger,
		Events: make(chan *domain.ExecutionEvent, bufferSize),
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
}

// Close closes the Events channel. Orders placed afterwards still match but
// their events are dropped. Close is idempotent.
func (m *Manager) Close() {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.Events)
}

func (m *Manager) symbolLock(symbol string) *sync.Mutex {
	lock, _ := m.locks.LoadOrStore(symbol, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// rejectReason is the metric label for a rejected order.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownInstrument):
		return "unknown_instrument"
	case errors.Is(err, domain.ErrInvalidSide):
		return "invalid_side"
	case errors.Is(err, domain.ErrInvalidKind):
		return "invalid_kind"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, domain.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, domain.ErrMissingIdentifier):
		return "missing_identifier"
	default:
		return "internal"
	}
}

// PlaceOrder validates, records and matches a new order. Validation errors
// wrap the domain sentinels and leave both the ledger and the book untouched.
// Ledger and event failures after matching are logged, not returned: the
// book has already changed and the match stands.
func (m *Manager) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.OrderRecord, *domain.MatchResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "ordermanager.PlaceOrder")
	defer span.End()

	order := &domain.Order{
		OrderID:  m.newID(),
		ClientID: in.ClientID,
		Symbol:   catalog.NormalizeSymbol(in.Symbol),
		Side:     in.Side,
		Kind:     in.Kind,
		Quantity: in.Quantity,
		Price:    in.Price,
	}
	if order.Kind == domain.OrderKindMarket {
		order.Price = decimal.Zero
	}
	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("order.symbol", order.Symbol),
		attribute.String("order.side", string(order.Side)),
		attribute.String("order.kind", string(order.Kind)),
	)

	engine, err := m.router.Engine(order.Symbol)
	if err == nil {
		err = engine.Validate(order)
	}
	if err != nil {
		telemetry.OrdersRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	lock := m.symbolLock(order.Symbol)
	lock.Lock()
	defer lock.Unlock()

	now := m.now()
	record := &domain.OrderRecord{
		Order:             *order,
		RemainingQuantity: order.Quantity,
		Status:            domain.OrderStatusNew,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.ledger.CreateOrder(ctx, record); err != nil {
		telemetry.OrdersRejectedTotal.WithLabelValues("internal").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger write failed")
		return nil, nil, fmt.Errorf("failed to record order: %w", err)
	}

	start := time.Now()
	result, err := m.router.Submit(order)
	telemetry.MatchDuration.WithLabelValues(order.Symbol).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.OrdersRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		record.RemainingQuantity = 0
		record.Status = domain.OrderStatusRejected
		record.UpdatedAt = m.now()
		if uerr := m.ledger.UpdateOrder(ctx, record); uerr != nil {
			slog.ErrorContext(ctx, "failed to mark order rejected",
				slog.String("component", "ordermanager"),
				slog.String("order_id", record.OrderID),
				slog.String("error", uerr.Error()))
		}
		return nil, nil, err
	}

	telemetry.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side), string(order.Kind)).Inc()
	span.SetAttributes(
		attribute.Int("order.executions", len(result.Executions)),
		attribute.Int64("order.filled", result.Filled),
	)

	applyResult(record, result, m.now())
	m.persist(ctx, record, result)
	m.recordMetrics(order.Symbol, result)

	taker := *record
	m.emit(ctx, &domain.ExecutionEvent{
		Taker:  &taker,
		Result: result,
		Depth:  engine.Depth(defaultDepth),
	})

	return record, result, nil
}

// applyResult derives the taker's fill state from its match result.
func applyResult(record *domain.OrderRecord, result *domain.MatchResult, now time.Time) {
	record.SequenceID = result.SequenceID
	record.FilledQuantity = result.Filled
	record.UpdatedAt = now
	// A market remainder rests at its last traded price.
	if result.Rested {
		record.Price = result.RestPrice
	}

	switch {
	case result.Remaining == 0:
		record.RemainingQuantity = 0
		record.Status = domain.OrderStatusFilled
	case !result.Rested:
		record.RemainingQuantity = 0
		record.Status = domain.OrderStatusUnfilled
	case result.Filled > 0:
		record.RemainingQuantity = result.Remaining
		record.Status = domain.OrderStatusPartiallyFilled
	default:
		record.RemainingQuantity = result.Remaining
		record.Status = domain.OrderStatusNew
	}
}

// makerStatus returns the status of a resting order with remaining open.
func makerStatus(remaining int64) domain.OrderStatus {
	if remaining == 0 {
		return domain.OrderStatusFilled
	}
	return domain.OrderStatusPartiallyFilled
}

// persist writes the taker update, the executions and every touched maker.
func (m *Manager) persist(ctx context.Context, taker *domain.OrderRecord, result *domain.MatchResult) {
	logger := slog.With(slog.String("component", "ordermanager"), slog.String("order_id", taker.OrderID))

	if err := m.ledger.UpdateOrder(ctx, taker); err != nil {
		logger.ErrorContext(ctx, "failed to update taker order", slog.String("error", err.Error()))
	}
	if len(result.Executions) == 0 {
		return
	}
	if err := m.ledger.RecordExecutions(ctx, result.Executions); err != nil {
		logger.ErrorContext(ctx, "failed to record executions", slog.String("error", err.Error()))
	}

	// The last execution against a maker carries its final remaining quantity.
	remaining := make(map[string]int64)
	var makers []string
	for _, exec := range result.Executions {
		if _, seen := remaining[exec.MakerOrderID]; !seen {
			makers = append(makers, exec.MakerOrderID)
		}
		remaining[exec.MakerOrderID] = exec.MakerRemaining
	}

	now := m.now()
	for _, id := range makers {
		maker, err := m.ledger.GetOrder(ctx, id)
		if err != nil {
			logger.WarnContext(ctx, "maker order not in ledger",
				slog.String("maker_order_id", id), slog.String("error", err.Error()))
			continue
		}
		maker.RemainingQuantity = remaining[id]
		maker.FilledQuantity = maker.Quantity - maker.RemainingQuantity
		maker.Status = makerStatus(maker.RemainingQuantity)
		maker.UpdatedAt = now
		if err := m.ledger.UpdateOrder(ctx, maker); err != nil {
			logger.ErrorContext(ctx, "failed to update maker order",
				slog.String("maker_order_id", id), slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) recordMetrics(symbol string, result *domain.MatchResult) {
	if n := len(result.Executions); n > 0 {
		telemetry.ExecutionsTotal.WithLabelValues(symbol).Add(float64(n))
		telemetry.TradedQuantityTotal.WithLabelValues(symbol).Add(float64(result.Filled))
	}
	telemetry.OrderBookLevels.WithLabelValues(symbol, string(domain.SideBuy)).Set(float64(len(result.Book.Bids)))
	telemetry.OrderBookLevels.WithLabelValues(symbol, string(domain.SideSell)).Set(float64(len(result.Book.Asks)))
}

// emit hands the event to downstream consumers without blocking matching.
func (m *Manager) emit(ctx context.Context, event *domain.ExecutionEvent) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		telemetry.FeedPublishErrorsTotal.WithLabelValues("events").Inc()
		slog.WarnContext(ctx, "order manager closed, dropping event",
			slog.String("component", "ordermanager"),
			slog.String("order_id", event.Result.OrderID))
		return
	}

	select {
	case m.Events <- event:
	default:
		telemetry.FeedPublishErrorsTotal.WithLabelValues("events").Inc()
		slog.WarnContext(ctx, "execution event channel full, dropping event",
			slog.String("component", "ordermanager"),
			slog.String("order_id", event.Result.OrderID))
	}
}

// GetOrder returns an order by ID.
func (m *Manager) GetOrder(ctx context.Context, id string) (*domain.OrderRecord, error) {
	return m.ledger.GetOrder(ctx, id)
}

// ListOrders returns orders matching filter.
func (m *Manager) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*domain.OrderRecord, error) {
	if filter.Symbol != "" {
		filter.Symbol = catalog.NormalizeSymbol(filter.Symbol)
	}
	return m.ledger.ListOrders(ctx, filter)
}
