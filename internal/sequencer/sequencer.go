package sequencer

import (
	"fmt"
	"sync/atomic"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// Sequencer stamps monotonically increasing sequence IDs on accepted orders
// (inbound) and on the executions they produce (outbound). Each matching
// engine owns one, so sequence IDs form a total order per instrument.
type Sequencer struct {
	inboundSeq  atomic.Uint64
	outboundSeq atomic.Uint64
}

// New creates a sequencer with both counters at zero.
func New() *Sequencer {
	return &Sequencer{}
}

// NextInbound returns the sequence ID for the next accepted order.
func (s *Sequencer) NextInbound() uint64 {
	return s.inboundSeq.Add(1)
}

// StampExecutions assigns outbound sequence IDs and execution IDs in the order
// the executions were produced.
func (s *Sequencer) StampExecutions(executions []*domain.Execution) {
	for _, exec := range executions {
		exec.SequenceID = s.outboundSeq.Add(1)
		exec.ExecID = fmt.Sprintf("%s-exec-%d", exec.TakerOrderID, exec.SequenceID)
	}
}

// CurrentInboundSeq returns the current inbound sequence number.
func (s *Sequencer) CurrentInboundSeq() uint64 {
	return s.inboundSeq.Load()
}
