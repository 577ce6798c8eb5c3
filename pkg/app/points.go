package app

import (
	"encoding/binary"
	"fmt"
	"math"

	"avaneesh/dnp3-outstation/pkg/types"
)

// Encoding names the group/variation a point class is reported with
type Encoding struct {
	Group     uint8
	Variation uint8
}

var staticEncodings = [...]Encoding{
	types.PointClassBinary:             {GroupBinaryInput, BinaryInputWithFlags},
	types.PointClassDoubleBitBinary:    {GroupDoubleBitBinaryInput, 2},
	types.PointClassAnalog:             {GroupAnalogInput, AnalogInputFloat},
	types.PointClassCounter:            {GroupCounter, Counter32Bit},
	types.PointClassFrozenCounter:      {GroupFrozenCounter, 1},
	types.PointClassBinaryOutputStatus: {GroupBinaryOutput, 2},
	types.PointClassAnalogOutputStatus: {GroupAnalogOutputStatus, 3},
}

var eventEncodings = [...]Encoding{
	types.PointClassBinary:             {GroupBinaryInputEvent, BinaryInputEventWithTime},
	types.PointClassDoubleBitBinary:    {GroupDoubleBitBinaryEvent, 2},
	types.PointClassAnalog:             {GroupAnalogInputEvent, AnalogInputEventFloatWithTime},
	types.PointClassCounter:            {GroupCounterEvent, 1},
	types.PointClassFrozenCounter:      {GroupFrozenCounterEvent, 1},
	types.PointClassBinaryOutputStatus: {GroupBinaryOutputEvent, 2},
	types.PointClassAnalogOutputStatus: {GroupAnalogOutputEvent, 7},
}

// StaticEncoding returns the default static encoding of a point class
func StaticEncoding(c types.PointClass) Encoding {
	return staticEncodings[c]
}

// EventEncoding returns the encoding used for change events of a point class
func EventEncoding(c types.PointClass) Encoding {
	return eventEncodings[c]
}

// ClassForGroup resolves which point class a static or event group reports.
func ClassForGroup(group uint8) (c types.PointClass, event bool, ok bool) {
	for i, e := range staticEncodings {
		if e.Group == group {
			return types.PointClass(i), false, true
		}
	}
	for i, e := range eventEncodings {
		if e.Group == group {
			return types.PointClass(i), true, true
		}
	}
	return 0, false, false
}

// SupportsStaticVariation reports whether a read of class c in the given
// variation can be answered. Variation 0 selects the default.
func SupportsStaticVariation(c types.PointClass, variation uint8) bool {
	if variation == VariationAny || variation == staticEncodings[c].Variation {
		return true
	}
	switch c {
	case types.PointClassAnalog:
		return variation >= AnalogInput32Bit && variation <= AnalogInputDouble
	case types.PointClassAnalogOutputStatus:
		return variation >= 1 && variation <= 4
	case types.PointClassCounter:
		return variation == Counter16Bit || variation == Counter32BitNoFlag || variation == Counter16BitNoFlag
	}
	return false
}

// EncodeStatic encodes the current value of one point in the given variation
// (0 for the class default). value must be of the canonical type of c.
func EncodeStatic(c types.PointClass, variation uint8, flags types.Flags, value any) ([]byte, error) {
	if variation == VariationAny {
		variation = staticEncodings[c].Variation
	}

	switch c {
	case types.PointClassBinary, types.PointClassBinaryOutputStatus:
		on, _ := value.(bool)
		return []byte{uint8(flags.WithState(on))}, nil

	case types.PointClassDoubleBitBinary:
		dbv, _ := value.(types.DoubleBitValue)
		return []byte{uint8(flags.WithDoubleBit(dbv))}, nil

	case types.PointClassCounter, types.PointClassFrozenCounter:
		n, _ := value.(uint32)
		switch variation {
		case Counter32Bit:
			return putFlagged(flags, 4, func(b []byte) { binary.LittleEndian.PutUint32(b, n) }), nil
		case Counter16Bit:
			return putFlagged(flags, 2, func(b []byte) { binary.LittleEndian.PutUint16(b, uint16(n)) }), nil
		case Counter32BitNoFlag:
			return binary.LittleEndian.AppendUint32(nil, n), nil
		case Counter16BitNoFlag:
			return binary.LittleEndian.AppendUint16(nil, uint16(n)), nil
		}

	case types.PointClassAnalog:
		f, _ := value.(float64)
		switch variation {
		case AnalogInput32Bit:
			return putFlagged(flags, 4, func(b []byte) { binary.LittleEndian.PutUint32(b, uint32(clampInt32(f))) }), nil
		case AnalogInput16Bit:
			return putFlagged(flags, 2, func(b []byte) { binary.LittleEndian.PutUint16(b, uint16(clampInt16(f))) }), nil
		case AnalogInput32BitNoFlag:
			return binary.LittleEndian.AppendUint32(nil, uint32(clampInt32(f))), nil
		case AnalogInput16BitNoFlag:
			return binary.LittleEndian.AppendUint16(nil, uint16(clampInt16(f))), nil
		case AnalogInputFloat:
			return putFlagged(flags, 4, func(b []byte) { binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f))) }), nil
		case AnalogInputDouble:
			return putFlagged(flags, 8, func(b []byte) { binary.LittleEndian.PutUint64(b, math.Float64bits(f)) }), nil
		}

	case types.PointClassAnalogOutputStatus:
		f, _ := value.(float64)
		switch variation {
		case 1:
			return putFlagged(flags, 4, func(b []byte) { binary.LittleEndian.PutUint32(b, uint32(clampInt32(f))) }), nil
		case 2:
			return putFlagged(flags, 2, func(b []byte) { binary.LittleEndian.PutUint16(b, uint16(clampInt16(f))) }), nil
		case 3:
			return putFlagged(flags, 4, func(b []byte) { binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f))) }), nil
		case 4:
			return putFlagged(flags, 8, func(b []byte) { binary.LittleEndian.PutUint64(b, math.Float64bits(f)) }), nil
		}
	}

	return nil, fmt.Errorf("%w: %s variation %d", ErrInvalidVariation, c, variation)
}

// EncodeEvent encodes one change event in the event encoding of class c
func EncodeEvent(c types.PointClass, flags types.Flags, value any, ts types.DNP3Time) []byte {
	switch c {
	case types.PointClassBinary, types.PointClassBinaryOutputStatus, types.PointClassDoubleBitBinary:
		var flag uint8
		if c == types.PointClassDoubleBitBinary {
			dbv, _ := value.(types.DoubleBitValue)
			flag = uint8(flags.WithDoubleBit(dbv))
		} else {
			on, _ := value.(bool)
			flag = uint8(flags.WithState(on))
		}
		buf := make([]byte, 7)
		buf[0] = flag
		ts.PutTime48(buf[1:])
		return buf

	case types.PointClassCounter, types.PointClassFrozenCounter:
		n, _ := value.(uint32)
		return putFlagged(flags, 4, func(b []byte) { binary.LittleEndian.PutUint32(b, n) })

	default:
		f, _ := value.(float64)
		buf := make([]byte, 11)
		buf[0] = uint8(flags)
		binary.LittleEndian.PutUint32(buf[1:], math.Float32bits(float32(f)))
		ts.PutTime48(buf[5:])
		return buf
	}
}

// DecodedPoint is a point value read back from a response object
type DecodedPoint struct {
	Flags types.Flags
	Value any
	Time  types.DNP3Time
}

// DecodePoint decodes one static or event object. Only the encodings this
// package produces are understood.
func DecodePoint(group, variation uint8, data []byte) (DecodedPoint, error) {
	size := ObjectSize(group, variation)
	if size == 0 {
		return DecodedPoint{}, fmt.Errorf("%w: g%dv%d", ErrUnknownObject, group, variation)
	}
	if len(data) < size {
		return DecodedPoint{}, ErrInsufficientData
	}

	p := DecodedPoint{Flags: types.Flags(data[0])}
	switch group {
	case GroupBinaryInput, GroupBinaryOutput:
		p.Value = p.Flags.State()
	case GroupBinaryInputEvent, GroupBinaryOutputEvent:
		p.Value = p.Flags.State()
		if variation == 2 {
			p.Time = types.Time48(data[1:])
		}
	case GroupDoubleBitBinaryInput:
		p.Value = p.Flags.DoubleBit()
	case GroupDoubleBitBinaryEvent:
		p.Value = p.Flags.DoubleBit()
		if variation == 2 {
			p.Time = types.Time48(data[1:])
		}
	case GroupCounter, GroupFrozenCounter, GroupCounterEvent, GroupFrozenCounterEvent:
		switch size {
		case 5, 11:
			p.Value = binary.LittleEndian.Uint32(data[1:])
		case 3, 9:
			p.Value = uint32(binary.LittleEndian.Uint16(data[1:]))
		case 4:
			p = DecodedPoint{Value: binary.LittleEndian.Uint32(data)}
		case 2:
			p = DecodedPoint{Value: uint32(binary.LittleEndian.Uint16(data))}
		}
		switch size {
		case 11:
			p.Time = types.Time48(data[5:])
		case 9:
			p.Time = types.Time48(data[3:])
		}
	case GroupAnalogInput, GroupAnalogOutputStatus:
		p.Value = decodeAnalog(group, variation, data)
		if group == GroupAnalogInput && (variation == AnalogInput32BitNoFlag || variation == AnalogInput16BitNoFlag) {
			p.Flags = 0
		}
	case GroupAnalogInputEvent, GroupAnalogOutputEvent:
		switch variation {
		case 1, 3:
			p.Value = float64(int32(binary.LittleEndian.Uint32(data[1:])))
		case 2, 4:
			p.Value = float64(int16(binary.LittleEndian.Uint16(data[1:])))
		case 5, 7:
			p.Value = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[1:])))
		case 6, 8:
			p.Value = math.Float64frombits(binary.LittleEndian.Uint64(data[1:]))
		}
		switch variation {
		case 3, 7:
			p.Time = types.Time48(data[5:])
		case 4:
			p.Time = types.Time48(data[3:])
		case 8:
			p.Time = types.Time48(data[9:])
		}
	default:
		return DecodedPoint{}, fmt.Errorf("%w: g%dv%d", ErrUnknownObject, group, variation)
	}
	return p, nil
}

func decodeAnalog(group, variation uint8, data []byte) float64 {
	if group == GroupAnalogOutputStatus {
		// g40 variations 1..4 line up with g30 variations 1, 2, 5, 6
		variation = [...]uint8{0, AnalogInput32Bit, AnalogInput16Bit, AnalogInputFloat, AnalogInputDouble}[variation]
	}
	switch variation {
	case AnalogInput32Bit:
		return float64(int32(binary.LittleEndian.Uint32(data[1:])))
	case AnalogInput16Bit:
		return float64(int16(binary.LittleEndian.Uint16(data[1:])))
	case AnalogInput32BitNoFlag:
		return float64(int32(binary.LittleEndian.Uint32(data)))
	case AnalogInput16BitNoFlag:
		return float64(int16(binary.LittleEndian.Uint16(data)))
	case AnalogInputFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[1:])))
	case AnalogInputDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(data[1:]))
	}
	return 0
}

func putFlagged(flags types.Flags, width int, put func([]byte)) []byte {
	buf := make([]byte, 1+width)
	buf[0] = uint8(flags)
	put(buf[1:])
	return buf
}

func clampInt32(f float64) int32 {
	switch {
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(math.Round(f))
}

func clampInt16(f float64) int16 {
	switch {
	case f >= math.MaxInt16:
		return math.MaxInt16
	case f <= math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(f))
}
