// Package feed delivers executions to downstream consumers over a message
// broker. Executions of one instrument are always published in sequence order.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// Publisher sends the executions produced by one order.
type Publisher interface {
	Publish(ctx context.Context, symbol string, executions []*domain.Execution) error
	Close() error
}

// Subject returns the subject or topic suffix executions for symbol go to,
// e.g. executions.AAPL.
func Subject(prefix, symbol string) string {
	return fmt.Sprintf("%s.%s", prefix, symbol)
}

func encode(exec *domain.Execution) ([]byte, error) {
	data, err := json.Marshal(exec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution %s: %w", exec.ExecID, err)
	}
	return data, nil
}

// Noop discards everything. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, []*domain.Execution) error { return nil }
func (Noop) Close() error                                             { return nil }
