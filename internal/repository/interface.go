package repository

import (
	"context"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// OrderFilter narrows ListOrders. Empty fields match everything.
type OrderFilter struct {
	Symbol   string
	ClientID string
	Limit    int
}

func (f OrderFilter) match(o *domain.OrderRecord) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.ClientID != "" && o.ClientID != f.ClientID {
		return false
	}
	return true
}

// OrderLedger stores orders and their executions outside the matching core.
// This allows switching between the in-memory and PostgreSQL implementations.
type OrderLedger interface {
	// CreateOrder stores a newly accepted order.
	CreateOrder(ctx context.Context, order *domain.OrderRecord) error

	// UpdateOrder replaces the fill state of a stored order.
	UpdateOrder(ctx context.Context, order *domain.OrderRecord) error

	// GetOrder returns the order with id, or domain.ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (*domain.OrderRecord, error)

	// ListOrders returns matching orders, oldest first.
	ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.OrderRecord, error)

	// RecordExecutions appends executions to the trade history.
	RecordExecutions(ctx context.Context, executions []*domain.Execution) error

	Close() error
}
