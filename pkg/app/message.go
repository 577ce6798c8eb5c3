package app

import (
	"errors"
	"fmt"
)

var (
	ErrNotRequest    = errors.New("not a request function")
	ErrMultiFragment = errors.New("multi-fragment requests are not supported")
)

// ParseError describes a request that could be framed but not understood.
// IIN2 carries the indication bit the response should report.
type ParseError struct {
	IIN2 uint8
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (IIN2=0x%02X): %v", e.IIN2, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func paramError(err error) *ParseError {
	return &ParseError{IIN2: IIN2ParameterError, Err: err}
}

func objectUnknown(err error) *ParseError {
	return &ParseError{IIN2: IIN2ObjectUnknown, Err: err}
}

// Object is one object value together with the point index it addresses
type Object struct {
	Index uint32
	Data  []byte
}

// ObjectBlock is an object header and the objects that follow it.
// Selector headers (READ, class requests) have no objects, except that an
// index-prefixed selector lists its indices as objects without data.
type ObjectBlock struct {
	Header  ObjectHeader
	Objects []Object
}

// Message is a parsed application fragment
type Message struct {
	APDU   *APDU
	Blocks []ObjectBlock
}

// Function returns the function code of the message
func (m *Message) Function() FunctionCode {
	return m.APDU.FunctionCode
}

// ParseRequest parses a complete request fragment received by an outstation.
// Framing problems return a plain error; requests that framed correctly but
// carry bad objects return *ParseError so the caller can answer with IIN.
func ParseRequest(data []byte) (*Message, error) {
	apdu, err := Parse(data)
	if err != nil {
		return nil, err
	}
	msg := &Message{APDU: apdu}

	if !apdu.FunctionCode.IsRequest() {
		return msg, &ParseError{IIN2: IIN2NoFuncCodeSupport, Err: fmt.Errorf("%w: %s", ErrNotRequest, apdu.FunctionCode)}
	}
	if !apdu.FIR || !apdu.FIN {
		return msg, paramError(ErrMultiFragment)
	}

	msg.Blocks, err = ParseObjects(apdu.Objects, apdu.FunctionCode.CarriesObjectData())
	return msg, err
}

// ParseResponse parses a response fragment as a master would
func ParseResponse(data []byte) (*Message, error) {
	apdu, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if !apdu.IsResponse() {
		return nil, fmt.Errorf("%w: %s", ErrNotRequest, apdu.FunctionCode)
	}
	msg := &Message{APDU: apdu}
	msg.Blocks, err = ParseObjects(apdu.Objects, true)
	return msg, err
}

// ParseObjects splits object data into blocks. When withData is false every
// header is a bare selector and no object values are expected.
func ParseObjects(objects []byte, withData bool) ([]ObjectBlock, error) {
	var blocks []ObjectBlock
	p := NewParser(objects)

	for p.HasMore() {
		header, err := p.ReadObjectHeader()
		if err != nil {
			if errors.Is(err, ErrUnsupportedQualifier) {
				return blocks, objectUnknown(err)
			}
			return blocks, paramError(err)
		}
		if err := ValidateObjectHeader(header); err != nil {
			return blocks, objectUnknown(err)
		}

		block := ObjectBlock{Header: *header}
		if withData && header.Group != GroupClassData {
			block.Objects, err = readObjects(p, header)
			if err != nil {
				return blocks, err
			}
		} else if header.Qualifier.IsIndexed() {
			block.Objects, err = readIndices(p, header)
			if err != nil {
				return blocks, err
			}
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

func readObjects(p *Parser, header *ObjectHeader) ([]Object, error) {
	count := GetCount(header.Range)
	if header.Qualifier == QualifierNoRange {
		return nil, nil
	}

	var start uint32
	if r, ok := header.Range.(StartStopRange); ok {
		start = r.Start
	}

	if IsPacked(header.Group, header.Variation) {
		if header.Qualifier.IsIndexed() {
			return nil, paramError(fmt.Errorf("%w: packed objects with index prefix", ErrInvalidRange))
		}
		raw, err := p.ReadBytes(int((count + 7) / 8))
		if err != nil {
			return nil, paramError(err)
		}
		objs := make([]Object, count)
		for i := uint32(0); i < count; i++ {
			objs[i] = Object{Index: start + i, Data: []byte{(raw[i/8] >> (i % 8)) & 1}}
		}
		return objs, nil
	}

	size := ObjectSize(header.Group, header.Variation)
	if size == 0 {
		return nil, objectUnknown(fmt.Errorf("%w: g%dv%d", ErrUnknownObject, header.Group, header.Variation))
	}
	prefix := header.Qualifier.IndexSize()
	if uint64(count)*uint64(size+prefix) > uint64(p.Remaining()) {
		return nil, paramError(fmt.Errorf("%w: %d objects of %d bytes", ErrInsufficientData, count, size+prefix))
	}

	objs := make([]Object, count)
	for i := uint32(0); i < count; i++ {
		idx := start + i
		if prefix > 0 {
			v, err := p.ReadUint(prefix)
			if err != nil {
				return nil, paramError(err)
			}
			idx = v
		} else if _, ok := header.Range.(CountRange); ok {
			idx = i
		}
		data, err := p.ReadBytes(size)
		if err != nil {
			return nil, paramError(err)
		}
		objs[i] = Object{Index: idx, Data: data}
	}
	return objs, nil
}

func readIndices(p *Parser, header *ObjectHeader) ([]Object, error) {
	count := GetCount(header.Range)
	if uint64(count)*uint64(header.Qualifier.IndexSize()) > uint64(p.Remaining()) {
		return nil, paramError(fmt.Errorf("%w: %d indices", ErrInsufficientData, count))
	}
	objs := make([]Object, count)
	for i := range objs {
		v, err := p.ReadUint(header.Qualifier.IndexSize())
		if err != nil {
			return nil, paramError(err)
		}
		objs[i] = Object{Index: v}
	}
	return objs, nil
}
