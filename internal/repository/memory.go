package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// MemoryLedger keeps orders and executions in process memory.
type MemoryLedger struct {
	mu         sync.RWMutex
	orders     map[string]*domain.OrderRecord
	sequence   []string // order IDs in creation order
	executions []*domain.Execution
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		orders: make(map[string]*domain.OrderRecord),
	}
}

func (m *MemoryLedger) CreateOrder(_ context.Context, order *domain.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.OrderID]; exists {
		return fmt.Errorf("order %s already exists", order.OrderID)
	}
	stored := *order
	m.orders[order.OrderID] = &stored
	m.sequence = append(m.sequence, order.OrderID)
	return nil
}

func (m *MemoryLedger) UpdateOrder(_ context.Context, order *domain.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.orders[order.OrderID]
	if !exists {
		return fmt.Errorf("order %s: %w", order.OrderID, domain.ErrOrderNotFound)
	}
	stored.Price = order.Price
	stored.FilledQuantity = order.FilledQuantity
	stored.RemainingQuantity = order.RemainingQuantity
	stored.Status = order.Status
	stored.SequenceID = order.SequenceID
	stored.UpdatedAt = order.UpdatedAt
	return nil
}

func (m *MemoryLedger) GetOrder(_ context.Context, id string) (*domain.OrderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, exists := m.orders[id]
	if !exists {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	order := *stored
	return &order, nil
}

func (m *MemoryLedger) ListOrders(_ context.Context, filter OrderFilter) ([]*domain.OrderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.OrderRecord, 0)
	for _, id := range m.sequence {
		stored := m.orders[id]
		if !filter.match(stored) {
			continue
		}
		order := *stored
		result = append(result, &order)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryLedger) RecordExecutions(_ context.Context, executions []*domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, executions...)
	return nil
}

// Executions returns every recorded execution.
func (m *MemoryLedger) Executions() []*domain.Execution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Execution(nil), m.executions...)
}

func (m *MemoryLedger) Close() error { return nil }
