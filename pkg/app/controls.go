package app

import (
	"encoding/binary"
	"fmt"
	"math"

	"avaneesh/dnp3-outstation/pkg/types"
)

// CROBSize is the wire size of a g12v1 object
const CROBSize = 11

// NewCROB creates a CROB with specified parameters
func NewCROB(code types.ControlCode, count uint8, onTime, offTime uint32) types.CROB {
	return types.CROB{
		Code:      code,
		Count:     count,
		OnTimeMs:  onTime,
		OffTimeMs: offTime,
	}
}

// NewLatchOn creates a CROB for latch on operation
func NewLatchOn() types.CROB {
	return NewCROB(types.ControlCodeLatchOn, 1, 0, 0)
}

// NewLatchOff creates a CROB for latch off operation
func NewLatchOff() types.CROB {
	return NewCROB(types.ControlCodeLatchOff, 1, 0, 0)
}

// NewPulseOn creates a CROB for pulse on operation
func NewPulseOn(onTime uint32) types.CROB {
	return NewCROB(types.ControlCodePulseOn, 1, onTime, 0)
}

// EncodeCROB converts a CROB to wire format (11 bytes)
func EncodeCROB(c types.CROB) []byte {
	buf := make([]byte, CROBSize)
	buf[0] = uint8(c.Code)
	buf[1] = c.Count
	binary.LittleEndian.PutUint32(buf[2:], c.OnTimeMs)
	binary.LittleEndian.PutUint32(buf[6:], c.OffTimeMs)
	buf[10] = uint8(c.Status)
	return buf
}

// DecodeCROB parses a CROB from wire format
func DecodeCROB(data []byte) (types.CROB, error) {
	if len(data) < CROBSize {
		return types.CROB{}, fmt.Errorf("%w: CROB needs %d bytes, have %d", ErrInsufficientData, CROBSize, len(data))
	}

	return types.CROB{
		Code:      types.ControlCode(data[0]),
		Count:     data[1],
		OnTimeMs:  binary.LittleEndian.Uint32(data[2:]),
		OffTimeMs: binary.LittleEndian.Uint32(data[6:]),
		Status:    types.CommandStatus(data[10] & 0x7F),
	}, nil
}

// EncodeAnalogOutput converts an analog output command to the g41 variation
// recorded in a.Variation. Variation 0 encodes as single precision float.
func EncodeAnalogOutput(a types.AnalogOutput) []byte {
	switch a.Variation {
	case AnalogOutputInt32:
		buf := make([]byte, 5)
		binary.LittleEndian.PutUint32(buf, uint32(clampInt32(a.Value)))
		buf[4] = uint8(a.Status)
		return buf
	case AnalogOutputInt16:
		buf := make([]byte, 3)
		binary.LittleEndian.PutUint16(buf, uint16(clampInt16(a.Value)))
		buf[2] = uint8(a.Status)
		return buf
	case AnalogOutputDouble:
		buf := make([]byte, 9)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(a.Value))
		buf[8] = uint8(a.Status)
		return buf
	default:
		buf := make([]byte, 5)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(a.Value)))
		buf[4] = uint8(a.Status)
		return buf
	}
}

// DecodeAnalogOutput parses a g41 object of the given variation
func DecodeAnalogOutput(variation uint8, data []byte) (types.AnalogOutput, error) {
	size := ObjectSize(GroupAnalogOutputCommand, variation)
	if size == 0 {
		return types.AnalogOutput{}, fmt.Errorf("%w: g41v%d", ErrInvalidVariation, variation)
	}
	if len(data) < size {
		return types.AnalogOutput{}, fmt.Errorf("%w: g41v%d needs %d bytes, have %d", ErrInsufficientData, variation, size, len(data))
	}

	ao := types.AnalogOutput{
		Variation: variation,
		Status:    types.CommandStatus(data[size-1] & 0x7F),
	}
	switch variation {
	case AnalogOutputInt32:
		ao.Value = float64(int32(binary.LittleEndian.Uint32(data)))
	case AnalogOutputInt16:
		ao.Value = float64(int16(binary.LittleEndian.Uint16(data)))
	case AnalogOutputFloat:
		ao.Value = float64(math.Float32frombits(binary.LittleEndian.Uint32(data)))
	case AnalogOutputDouble:
		ao.Value = math.Float64frombits(binary.LittleEndian.Uint64(data))
	}
	return ao, nil
}

// BuildCROBRequest builds g12v1 objects with a 16-bit index prefix, one CROB
// per index.
func BuildCROBRequest(crob types.CROB, indices ...uint16) []byte {
	builder := NewObjectBuilder()
	builder.AddHeader(GroupBinaryOutputCommand, 1, Qualifier16BitCountIndex16,
		CountRange{Count: uint32(len(indices))})
	data := EncodeCROB(crob)
	for _, idx := range indices {
		builder.AddIndexed(Qualifier16BitCountIndex16, uint32(idx), data)
	}
	return builder.Build()
}

// BuildAnalogOutputRequest builds a g41 object for a single index
func BuildAnalogOutputRequest(index uint16, ao types.AnalogOutput) []byte {
	if ao.Variation == 0 {
		ao.Variation = AnalogOutputFloat
	}
	builder := NewObjectBuilder()
	builder.AddHeader(GroupAnalogOutputCommand, ao.Variation, Qualifier16BitCountIndex16, CountRange{Count: 1})
	builder.AddIndexed(Qualifier16BitCountIndex16, uint32(index), EncodeAnalogOutput(ao))
	return builder.Build()
}
