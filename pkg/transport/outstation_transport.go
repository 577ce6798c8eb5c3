package transport

import (
	"errors"
	"sync"
	"time"
)

// OutstationTransport manages the transport layer of one outstation session
type OutstationTransport struct {
	txSequence uint8

	rxReassembler   *Reassembler
	reassemblyTimer *time.Timer

	config Config
	stats  Statistics

	mu sync.Mutex
}

// NewOutstationTransport creates a new outstation transport layer
func NewOutstationTransport(config Config) *OutstationTransport {
	if config.MaxSegmentSize <= 0 || config.MaxSegmentSize > MaxSegmentSize {
		config.MaxSegmentSize = MaxSegmentSize
	}
	return &OutstationTransport{
		rxReassembler: NewReassembler(config.MaxReassemblySize),
		config:        config,
	}
}

// Send segments an application fragment for the link layer.
// Each returned slice is one complete transport segment.
func (o *OutstationTransport) Send(apdu []byte) [][]byte {
	if len(apdu) == 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	segments := SegmentData(apdu, o.txSequence, o.config.MaxSegmentSize)
	o.txSequence = (o.txSequence + uint8(len(segments))) & TransportSeqMask

	o.stats.TxSegments.Add(uint64(len(segments)))
	o.stats.TxFragments.Inc()
	o.stats.markTx()

	result := make([][]byte, len(segments))
	for i, seg := range segments {
		result[i] = seg.Serialize()
	}
	return result
}

// Receive processes one transport segment from the master.
// It returns the fragment once complete, nil while more segments are needed.
// Errors (*SequenceError, ErrMissingFIR, ErrBufferOverflow, ErrEmptySegment)
// mean the segment was dropped; any partial fragment is discarded.
func (o *OutstationTransport) Receive(tpdu []byte) ([]byte, error) {
	segment, err := ParseSegment(tpdu)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.stats.RxSegments.Inc()
	if segment.FIR {
		o.startReassemblyTimer()
	}

	apdu, err := o.rxReassembler.Process(segment)
	if err != nil {
		o.stopReassemblyTimer()
		var seqErr *SequenceError
		switch {
		case errors.As(err, &seqErr):
			o.stats.SequenceErrors.Inc()
		case errors.Is(err, ErrBufferOverflow):
			o.stats.BufferOverflows.Inc()
		}
		return nil, err
	}

	if apdu != nil {
		o.stopReassemblyTimer()
		o.stats.RxFragments.Inc()
		o.stats.markRx()
	}
	return apdu, nil
}

func (o *OutstationTransport) startReassemblyTimer() {
	o.stopReassemblyTimer()
	if o.config.ReassemblyTimeout <= 0 {
		return
	}

	o.reassemblyTimer = time.AfterFunc(o.config.ReassemblyTimeout, func() {
		o.mu.Lock()
		defer o.mu.Unlock()

		if o.rxReassembler.InProgress() {
			o.rxReassembler.Reset()
			o.stats.TimeoutErrors.Inc()
		}
	})
}

func (o *OutstationTransport) stopReassemblyTimer() {
	if o.reassemblyTimer != nil {
		o.reassemblyTimer.Stop()
		o.reassemblyTimer = nil
	}
}

// Stats returns the live counters
func (o *OutstationTransport) Stats() *Statistics {
	return &o.stats
}

// Reset discards reassembly state and restarts the TX sequence
func (o *OutstationTransport) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopReassemblyTimer()
	o.rxReassembler.Reset()
	o.txSequence = 0
}

// Close stops the reassembly timer
func (o *OutstationTransport) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopReassemblyTimer()
}

// IsReassembling returns true if reassembly is in progress
func (o *OutstationTransport) IsReassembling() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rxReassembler.InProgress()
}
