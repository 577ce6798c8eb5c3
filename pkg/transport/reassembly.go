package transport

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySegment   = errors.New("empty transport segment")
	ErrMissingFIR     = errors.New("segment without FIR outside a fragment")
	ErrBufferOverflow = errors.New("reassembly buffer overflow")
)

// SequenceError reports a discontinuous segment sequence. The fragment being
// reassembled is discarded.
type SequenceError struct {
	Expected uint8
	Received uint8
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("transport: sequence error: expected %d, received %d", e.Expected, e.Received)
}

// MaxReassemblySize is the default largest fragment accepted
const MaxReassemblySize = 2048

// Reassembler joins inbound segments into one application fragment. A FIR
// segment always starts over.
type Reassembler struct {
	buf     []byte
	next    uint8
	active  bool
	maxSize int
}

// NewReassembler creates a reassembler bounded to maxSize bytes; maxSize <= 0
// selects MaxReassemblySize.
func NewReassembler(maxSize int) *Reassembler {
	if maxSize <= 0 {
		maxSize = MaxReassemblySize
	}
	return &Reassembler{maxSize: maxSize}
}

// Process adds a segment. It returns the fragment once the FIN segment
// arrives and nil while more segments are expected. Any error discards the
// partial fragment.
func (r *Reassembler) Process(seg *Segment) ([]byte, error) {
	switch {
	case seg.FIR:
		r.buf, r.active, r.next = r.buf[:0], true, seg.Seq
	case !r.active:
		return nil, ErrMissingFIR
	case seg.Seq != r.next:
		err := &SequenceError{Expected: r.next, Received: seg.Seq}
		r.Reset()
		return nil, err
	}

	if len(r.buf)+len(seg.Data) > r.maxSize {
		r.Reset()
		return nil, ErrBufferOverflow
	}
	r.buf = append(r.buf, seg.Data...)
	r.next = (r.next + 1) & TransportSeqMask

	if !seg.FIN {
		return nil, nil
	}
	fragment := make([]byte, len(r.buf))
	copy(fragment, r.buf)
	r.Reset()
	return fragment, nil
}

func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
	r.active = false
	r.next = 0
}

func (r *Reassembler) InProgress() bool { return r.active }
