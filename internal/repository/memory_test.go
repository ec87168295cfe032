package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/matching-engine/internal/domain"
)

func newRecord(id, symbol, client string) *domain.OrderRecord {
	return &domain.OrderRecord{
		Order: domain.Order{
			OrderID:  id,
			ClientID: client,
			Symbol:   symbol,
			Side:     domain.SideBuy,
			Kind:     domain.OrderKindLimit,
			Quantity: 10,
			Price:    decimal.NewFromInt(100),
		},
		RemainingQuantity: 10,
		Status:            domain.OrderStatusNew,
		CreatedAt:         time.Now(),
	}
}

func TestMemoryLedger_CreateGet(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	require.NoError(t, ledger.CreateOrder(ctx, newRecord("o1", "AAPL", "c1")))
	assert.Error(t, ledger.CreateOrder(ctx, newRecord("o1", "AAPL", "c1")))

	got, err := ledger.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ClientID)

	// Returned records are copies.
	got.Status = domain.OrderStatusFilled
	again, _ := ledger.GetOrder(ctx, "o1")
	assert.Equal(t, domain.OrderStatusNew, again.Status)

	_, err = ledger.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestMemoryLedger_Update(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	require.NoError(t, ledger.CreateOrder(ctx, newRecord("o1", "AAPL", "c1")))

	update := newRecord("o1", "AAPL", "c1")
	update.FilledQuantity = 4
	update.RemainingQuantity = 6
	update.Status = domain.OrderStatusPartiallyFilled
	update.Price = decimal.RequireFromString("101.5")
	require.NoError(t, ledger.UpdateOrder(ctx, update))

	got, err := ledger.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.FilledQuantity)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("101.5")))
	assert.Equal(t, domain.OrderStatusPartiallyFilled, got.Status)

	assert.ErrorIs(t, ledger.UpdateOrder(ctx, newRecord("nope", "AAPL", "c1")), domain.ErrOrderNotFound)
}

func TestMemoryLedger_ListFilters(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	require.NoError(t, ledger.CreateOrder(ctx, newRecord("o1", "AAPL", "c1")))
	require.NoError(t, ledger.CreateOrder(ctx, newRecord("o2", "MSFT", "c1")))
	require.NoError(t, ledger.CreateOrder(ctx, newRecord("o3", "AAPL", "c2")))

	all, err := ledger.ListOrders(ctx, OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "o1", all[0].OrderID)
	assert.Equal(t, "o3", all[2].OrderID)

	aapl, _ := ledger.ListOrders(ctx, OrderFilter{Symbol: "AAPL"})
	assert.Len(t, aapl, 2)

	c1aapl, _ := ledger.ListOrders(ctx, OrderFilter{Symbol: "AAPL", ClientID: "c1"})
	require.Len(t, c1aapl, 1)
	assert.Equal(t, "o1", c1aapl[0].OrderID)

	limited, _ := ledger.ListOrders(ctx, OrderFilter{Limit: 2})
	assert.Len(t, limited, 2)
}

func TestMemoryLedger_Executions(t *testing.T) {
	ledger := NewMemoryLedger()
	require.NoError(t, ledger.RecordExecutions(context.Background(), []*domain.Execution{{ExecID: "e1"}, {ExecID: "e2"}}))
	assert.Len(t, ledger.Executions(), 2)
	assert.NoError(t, ledger.Close())
}
