package channel

import "go.uber.org/atomic"

// Statistics tracks link level counters of one channel
type Statistics struct {
	LinkFramesTx  atomic.Uint64
	LinkFramesRx  atomic.Uint64
	CRCErrors     atomic.Uint64
	FramingErrors atomic.Uint64
	WriteErrors   atomic.Uint64
}

// StatisticsSnapshot is a point-in-time copy of Statistics
type StatisticsSnapshot struct {
	LinkFramesTx  uint64 `json:"linkFramesTx"`
	LinkFramesRx  uint64 `json:"linkFramesRx"`
	CRCErrors     uint64 `json:"crcErrors"`
	FramingErrors uint64 `json:"framingErrors"`
	WriteErrors   uint64 `json:"writeErrors"`
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Snapshot copies the counters
func (s *Statistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		LinkFramesTx:  s.LinkFramesTx.Load(),
		LinkFramesRx:  s.LinkFramesRx.Load(),
		CRCErrors:     s.CRCErrors.Load(),
		FramingErrors: s.FramingErrors.Load(),
		WriteErrors:   s.WriteErrors.Load(),
	}
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	s.LinkFramesTx.Store(0)
	s.LinkFramesRx.Store(0)
	s.CRCErrors.Store(0)
	s.FramingErrors.Store(0)
	s.WriteErrors.Store(0)
}
