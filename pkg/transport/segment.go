package transport

const (
	// HeaderSize is the single transport header byte in front of every segment
	HeaderSize = 1
	// MaxSegmentSize is the largest link payload (250) minus the header
	MaxSegmentSize = 250 - HeaderSize
)

const (
	TransportFIN     uint8 = 1 << 7
	TransportFIR     uint8 = 1 << 6
	TransportSeqMask uint8 = 1<<6 - 1
)

// Segment is one transport PDU: a header byte and up to MaxSegmentSize
// bytes of an application fragment.
type Segment struct {
	FIN  bool
	FIR  bool
	Seq  uint8
	Data []byte
}

// ParseSegment splits a link payload into header fields and data. Data
// aliases tpdu.
func ParseSegment(tpdu []byte) (*Segment, error) {
	if len(tpdu) < HeaderSize {
		return nil, ErrEmptySegment
	}
	seg := &Segment{Data: tpdu[HeaderSize:]}
	seg.FIR, seg.FIN, seg.Seq = ParseHeader(tpdu[0])
	return seg, nil
}

// ParseHeader decodes a transport header byte
func ParseHeader(b uint8) (fir, fin bool, seq uint8) {
	return b&TransportFIR != 0, b&TransportFIN != 0, b & TransportSeqMask
}

func header(fir, fin bool, seq uint8) uint8 {
	b := seq & TransportSeqMask
	if fir {
		b |= TransportFIR
	}
	if fin {
		b |= TransportFIN
	}
	return b
}

// Serialize returns the segment as a link payload
func (s *Segment) Serialize() []byte {
	return append([]byte{header(s.FIR, s.FIN, s.Seq)}, s.Data...)
}

// SegmentData breaks an application fragment into transport segments of at
// most maxSize payload bytes. maxSize outside 1..MaxSegmentSize selects
// MaxSegmentSize.
func SegmentData(data []byte, startSeq uint8, maxSize int) []*Segment {
	if len(data) == 0 {
		return nil
	}
	if maxSize <= 0 || maxSize > MaxSegmentSize {
		maxSize = MaxSegmentSize
	}

	var segments []*Segment
	seq := startSeq & TransportSeqMask
	for rest := data; len(rest) > 0; seq = (seq + 1) & TransportSeqMask {
		n := min(maxSize, len(rest))
		segments = append(segments, &Segment{
			FIR:  len(segments) == 0,
			FIN:  n == len(rest),
			Seq:  seq,
			Data: rest[:n],
		})
		rest = rest[n:]
	}
	return segments
}
