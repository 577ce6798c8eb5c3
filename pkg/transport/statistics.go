package transport

import (
	"time"

	"go.uber.org/atomic"
)

// Statistics tracks transport layer counters
type Statistics struct {
	TxSegments      atomic.Uint64
	RxSegments      atomic.Uint64
	TxFragments     atomic.Uint64
	RxFragments     atomic.Uint64
	SequenceErrors  atomic.Uint64
	TimeoutErrors   atomic.Uint64
	BufferOverflows atomic.Uint64

	lastTxNano atomic.Int64
	lastRxNano atomic.Int64
}

// StatisticsSnapshot is a point-in-time copy of Statistics
type StatisticsSnapshot struct {
	TxSegments      uint64    `json:"txSegments"`
	RxSegments      uint64    `json:"rxSegments"`
	TxFragments     uint64    `json:"txFragments"`
	RxFragments     uint64    `json:"rxFragments"`
	SequenceErrors  uint64    `json:"sequenceErrors"`
	TimeoutErrors   uint64    `json:"timeoutErrors"`
	BufferOverflows uint64    `json:"bufferOverflows"`
	LastTx          time.Time `json:"lastTx,omitempty"`
	LastRx          time.Time `json:"lastRx,omitempty"`
}

func (s *Statistics) markTx() { s.lastTxNano.Store(time.Now().UnixNano()) }
func (s *Statistics) markRx() { s.lastRxNano.Store(time.Now().UnixNano()) }

// Snapshot copies the counters
func (s *Statistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		TxSegments:      s.TxSegments.Load(),
		RxSegments:      s.RxSegments.Load(),
		TxFragments:     s.TxFragments.Load(),
		RxFragments:     s.RxFragments.Load(),
		SequenceErrors:  s.SequenceErrors.Load(),
		TimeoutErrors:   s.TimeoutErrors.Load(),
		BufferOverflows: s.BufferOverflows.Load(),
		LastTx:          nanoTime(s.lastTxNano.Load()),
		LastRx:          nanoTime(s.lastRxNano.Load()),
	}
}

// Reset zeroes all counters
func (s *Statistics) Reset() {
	for _, c := range []*atomic.Uint64{
		&s.TxSegments, &s.RxSegments, &s.TxFragments, &s.RxFragments,
		&s.SequenceErrors, &s.TimeoutErrors, &s.BufferOverflows,
	} {
		c.Store(0)
	}
	s.lastTxNano.Store(0)
	s.lastRxNano.Store(0)
}

func nanoTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
