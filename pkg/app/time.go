package app

import (
	"encoding/binary"
	"time"

	"avaneesh/dnp3-outstation/pkg/types"
)

// EncodeTimeAndDate serializes a g50v1 object
func EncodeTimeAndDate(t types.DNP3Time) []byte {
	buf := make([]byte, 6)
	t.PutTime48(buf)
	return buf
}

// DecodeTimeAndDate parses a g50v1 object
func DecodeTimeAndDate(data []byte) (types.DNP3Time, error) {
	if len(data) < 6 {
		return 0, ErrInsufficientData
	}
	return types.Time48(data), nil
}

// BuildTimeSync builds a time synchronization write (Group 50, Var 1)
func BuildTimeSync(t time.Time) []byte {
	builder := NewObjectBuilder()
	builder.AddHeaderWithData(GroupTimeDate, 1, Qualifier8BitCount, CountRange{Count: 1},
		EncodeTimeAndDate(types.FromTime(t)))
	return builder.Build()
}

// EncodeTimeDelay serializes a g52 delay value (v1 seconds, v2 milliseconds)
func EncodeTimeDelay(delay uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, delay)
}

// DecodeTimeDelay parses a g52 delay value
func DecodeTimeDelay(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, ErrInsufficientData
	}
	return binary.LittleEndian.Uint16(data), nil
}
