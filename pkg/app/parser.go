package app

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrInvalidObjectHeader  = errors.New("invalid object header")
	ErrInvalidRange         = errors.New("invalid range specification")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrUnsupportedQualifier = errors.New("unsupported qualifier")
)

// Parser is a cursor over the object section of a fragment. Slices it
// returns alias the input.
type Parser struct {
	data []byte
	pos  int
}

func NewParser(data []byte) *Parser {
	return &Parser{data: data}
}

func (p *Parser) HasMore() bool { return p.pos < len(p.data) }

func (p *Parser) Remaining() int { return len(p.data) - p.pos }

// ReadObjectHeader reads group, variation, qualifier and the range field.
// A start-stop range with stop below start is rejected.
func (p *Parser) ReadObjectHeader() (*ObjectHeader, error) {
	raw, err := p.ReadBytes(3)
	if err != nil {
		return nil, err
	}
	h := &ObjectHeader{Group: raw[0], Variation: raw[1], Qualifier: QualifierCode(raw[2])}

	width, startStop, ok := h.Qualifier.rangeField()
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedQualifier, raw[2])
	case width == 0:
		h.Range = NoRange{}
	case startStop:
		var r StartStopRange
		if r.Start, err = p.ReadUint(width); err != nil {
			return nil, err
		}
		if r.Stop, err = p.ReadUint(width); err != nil {
			return nil, err
		}
		if r.Stop < r.Start {
			return nil, fmt.Errorf("%w: start=%d, stop=%d", ErrInvalidRange, r.Start, r.Stop)
		}
		h.Range = r
	default:
		n, err := p.ReadUint(width)
		if err != nil {
			return nil, err
		}
		h.Range = CountRange{Count: n}
	}
	return h, nil
}

// ReadUint reads a little-endian unsigned value of 1, 2 or 4 bytes
func (p *Parser) ReadUint(width int) (uint32, error) {
	if width != 1 && width != 2 && width != 4 {
		return 0, fmt.Errorf("%w: width %d", ErrInvalidRange, width)
	}
	b, err := p.ReadBytes(width)
	if err != nil {
		return 0, err
	}
	var tmp [4]byte
	copy(tmp[:], b)
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

// ReadBytes consumes n bytes
func (p *Parser) ReadBytes(n int) ([]byte, error) {
	if n < 0 || p.Remaining() < n {
		return nil, ErrInsufficientData
	}
	b := p.data[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

// GetCount returns the number of objects a range addresses
func GetCount(r Range) uint32 {
	switch v := r.(type) {
	case StartStopRange:
		if v.Stop < v.Start {
			return 0
		}
		return v.Stop - v.Start + 1
	case CountRange:
		return v.Count
	}
	return 0
}
