package app

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ObjectBuilder helps construct object headers and data
type ObjectBuilder struct {
	buf bytes.Buffer
}

// NewObjectBuilder creates a new object builder
func NewObjectBuilder() *ObjectBuilder {
	return &ObjectBuilder{}
}

// AddHeader writes an object header. rng must match the qualifier's range
// field: StartStopRange, CountRange or NoRange.
func (b *ObjectBuilder) AddHeader(group, variation uint8, qualifier QualifierCode, rng Range) error {
	width, startStop, ok := qualifier.rangeField()
	if !ok {
		return fmt.Errorf("%w: 0x%02X", ErrUnsupportedQualifier, uint8(qualifier))
	}
	b.buf.Write([]byte{group, variation, uint8(qualifier)})

	switch r := rng.(type) {
	case StartStopRange:
		if !startStop {
			break
		}
		b.addUint(width, r.Start)
		b.addUint(width, r.Stop)
		return nil
	case CountRange:
		if startStop || width == 0 {
			break
		}
		b.addUint(width, r.Count)
		return nil
	case NoRange:
		if width == 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: qualifier 0x%02X cannot carry %T", ErrInvalidRange, uint8(qualifier), rng)
}

func (b *ObjectBuilder) addUint(width int, v uint32) {
	switch width {
	case 1:
		b.buf.WriteByte(uint8(v))
	case 2:
		b.AddUint16(uint16(v))
	default:
		b.AddUint32(v)
	}
}

// AddHeaderWithData adds an object header followed by raw data
func (b *ObjectBuilder) AddHeaderWithData(group, variation uint8, qualifier QualifierCode, rng Range, data []byte) error {
	if err := b.AddHeader(group, variation, qualifier, rng); err != nil {
		return err
	}
	b.buf.Write(data)
	return nil
}

// AddIndexed adds one object preceded by its index prefix as required by
// the index-prefixed qualifier q.
func (b *ObjectBuilder) AddIndexed(q QualifierCode, index uint32, data []byte) {
	b.addUint(q.IndexSize(), index)
	b.buf.Write(data)
}

// AddRawData adds raw data without a header
func (b *ObjectBuilder) AddRawData(data []byte) {
	b.buf.Write(data)
}

// AddByte adds a single byte
func (b *ObjectBuilder) AddByte(val uint8) {
	b.buf.WriteByte(val)
}

// AddUint16 adds a 16-bit value (little endian)
func (b *ObjectBuilder) AddUint16(val uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], val)
	b.buf.Write(tmp[:])
}

// AddUint32 adds a 32-bit value (little endian)
func (b *ObjectBuilder) AddUint32(val uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], val)
	b.buf.Write(tmp[:])
}

// Len returns the number of bytes written so far
func (b *ObjectBuilder) Len() int {
	return b.buf.Len()
}

// Build returns a copy of the constructed object data
func (b *ObjectBuilder) Build() []byte {
	data := b.buf.Bytes()
	result := make([]byte, len(data))
	copy(result, data)
	return result
}

// Reset clears the builder for reuse
func (b *ObjectBuilder) Reset() {
	b.buf.Reset()
}

// BuildClassRead builds a read request for specific classes
func BuildClassRead(classes ...ClassField) []byte {
	builder := NewObjectBuilder()
	for _, class := range classes {
		v := class.Variation()
		if v == 0 {
			continue
		}
		builder.AddHeader(GroupClassData, v, QualifierNoRange, NoRange{})
	}
	return builder.Build()
}

// BuildIntegrityPoll builds a Class 0 (integrity) read request
func BuildIntegrityPoll() []byte {
	return BuildClassRead(Class0)
}

// BuildEventPoll builds a Class 1,2,3 (event) read request
func BuildEventPoll() []byte {
	return BuildClassRead(Class1, Class2, Class3)
}

// BuildEnableUnsolicited builds objects for enable unsolicited request.
// Class 0 is not an event class and is skipped.
func BuildEnableUnsolicited(classes ...ClassField) []byte {
	events := make([]ClassField, 0, len(classes))
	for _, c := range classes {
		if c != Class0 {
			events = append(events, c)
		}
	}
	return BuildClassRead(events...)
}

// BuildDisableUnsolicited builds objects for disable unsolicited request
func BuildDisableUnsolicited(classes ...ClassField) []byte {
	return BuildEnableUnsolicited(classes...)
}

// BuildRangeRead builds a read request for specific object range
func BuildRangeRead(group, variation uint8, start, stop uint32) []byte {
	builder := NewObjectBuilder()

	var qualifier QualifierCode
	switch {
	case stop <= 0xFF:
		qualifier = Qualifier8BitStartStop
	case stop <= 0xFFFF:
		qualifier = Qualifier16BitStartStop
	default:
		qualifier = Qualifier32BitStartStop
	}

	builder.AddHeader(group, variation, qualifier, StartStopRange{Start: start, Stop: stop})
	return builder.Build()
}

// BuildAllObjectsRead builds a read of every point of a group
func BuildAllObjectsRead(group, variation uint8) []byte {
	builder := NewObjectBuilder()
	builder.AddHeader(group, variation, QualifierNoRange, NoRange{})
	return builder.Build()
}
