package types

import (
	"encoding/binary"
	"time"
)

// DNP3Time is a UTC timestamp in milliseconds since the Unix epoch. The wire
// form keeps the low 48 bits.
type DNP3Time uint64

const time48Mask = 1<<48 - 1

func Now() DNP3Time { return FromTime(time.Now()) }

func FromTime(t time.Time) DNP3Time { return DNP3Time(t.UnixMilli()) }

func (t DNP3Time) ToTime() time.Time { return time.UnixMilli(int64(t)) }

// PutTime48 writes the 48-bit little-endian encoding into b[0:6]
func (t DNP3Time) PutTime48(b []byte) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(t)&time48Mask)
	copy(b[:6], tmp[:6])
}

// Time48 reads a 48-bit little-endian timestamp from b[0:6]
func Time48(b []byte) DNP3Time {
	var tmp [8]byte
	copy(tmp[:6], b[:6])
	return DNP3Time(binary.LittleEndian.Uint64(tmp[:]))
}
