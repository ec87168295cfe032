package feed

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/matching-engine/internal/domain"
)

func testExecution(seq uint64) *domain.Execution {
	return &domain.Execution{
		ExecID:     "b1-exec-1",
		Symbol:     "AAPL",
		MakerID:    "maker",
		TakerID:    "taker",
		TakerSide:  domain.SideBuy,
		Price:      decimal.RequireFromString("10.5"),
		Quantity:   7,
		SequenceID: seq,
		Timestamp:  time.Now(),
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "executions.AAPL", Subject("executions", "AAPL"))
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), "AAPL", []*domain.Execution{testExecution(1)}))
	assert.NoError(t, p.Close())
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	p, err := NewNATSPublisher(url, "test-executions")
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	defer p.Close()

	sub, err := p.Conn().SubscribeSync(Subject("test-executions", "AAPL"))
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "AAPL", []*domain.Execution{testExecution(1), testExecution(2)}))

	for want := uint64(1); want <= 2; want++ {
		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err)
		var got domain.Execution
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, want, got.SequenceID)
		assert.True(t, got.Price.Equal(decimal.RequireFromString("10.5")))
	}
}

func TestKafkaPublisher_EmptyIsNoop(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "executions")
	defer p.Close()
	assert.NoError(t, p.Publish(context.Background(), "AAPL", nil))
}
