package types

// Flags is the quality octet carried with every point value. Bits 0..4 mean
// the same for every point class; bits 5..7 are class specific.
type Flags uint8

const (
	FlagOnline Flags = 1 << iota
	FlagRestart
	FlagCommLost
	FlagRemoteForced
	FlagLocalForced
)

// Class specific bits
const (
	FlagChatterFilter Flags = 0x20 // binary
	FlagOverRange     Flags = 0x20 // analog and counter
	FlagReferenceErr  Flags = 0x40 // analog
	FlagDiscontinuity Flags = 0x40 // counter
	FlagState         Flags = 0x80 // binary
)

const (
	doubleBitShift      = 6
	doubleBitMask Flags = 0x03 << doubleBitShift
)

func (f Flags) has(bits Flags) bool { return f&bits != 0 }

func (f Flags) with(bit Flags, on bool) Flags {
	if on {
		return f | bit
	}
	return f &^ bit
}

func (f Flags) IsOnline() bool      { return f.has(FlagOnline) }
func (f Flags) HasRestart() bool    { return f.has(FlagRestart) }
func (f Flags) HasCommLost() bool   { return f.has(FlagCommLost) }
func (f Flags) IsForced() bool      { return f.has(FlagRemoteForced | FlagLocalForced) }
func (f Flags) IsLocalForced() bool { return f.has(FlagLocalForced) }

// State is the binary value bit
func (f Flags) State() bool { return f.has(FlagState) }

func (f Flags) WithState(on bool) Flags        { return f.with(FlagState, on) }
func (f Flags) WithOnline(online bool) Flags   { return f.with(FlagOnline, online) }
func (f Flags) WithRestart(restart bool) Flags { return f.with(FlagRestart, restart) }

// DoubleBit returns the double-bit binary state held in bits 6..7
func (f Flags) DoubleBit() DoubleBitValue {
	return DoubleBitValue(f >> doubleBitShift)
}

// WithDoubleBit replaces bits 6..7 with v
func (f Flags) WithDoubleBit(v DoubleBitValue) Flags {
	return f&^doubleBitMask | Flags(v&0x03)<<doubleBitShift
}
