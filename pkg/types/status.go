package types

import "fmt"

// IIN (Internal Indication) represents DNP3 internal indication bits
// Every outstation response carries both bytes.
type IIN struct {
	IIN1 uint8 // First IIN byte
	IIN2 uint8 // Second IIN byte
}

// IIN1 bit masks
const (
	IIN1AllStations   uint8 = 0x01 // Broadcast message received
	IIN1Class1Events  uint8 = 0x02 // Class 1 events available
	IIN1Class2Events  uint8 = 0x04 // Class 2 events available
	IIN1Class3Events  uint8 = 0x08 // Class 3 events available
	IIN1NeedTime      uint8 = 0x10 // Device needs time synchronization
	IIN1LocalControl  uint8 = 0x20 // Device in local control mode
	IIN1DeviceTrouble uint8 = 0x40 // Device trouble or malfunction
	IIN1DeviceRestart uint8 = 0x80 // Device restart detected
)

// IIN2 bit masks
const (
	IIN2NoFuncCodeSupport   uint8 = 0x01 // Function code not supported
	IIN2ObjectUnknown       uint8 = 0x02 // Object unknown
	IIN2ParameterError      uint8 = 0x04 // Parameter error
	IIN2EventBufferOverflow uint8 = 0x08 // Event buffer overflow
	IIN2AlreadyExecuting    uint8 = 0x10 // Operation already executing
	IIN2ConfigCorrupt       uint8 = 0x20 // Configuration corrupt
)

// HasAnyClassEvents returns true if any class events are available
func (iin IIN) HasAnyClassEvents() bool {
	return iin.IIN1&(IIN1Class1Events|IIN1Class2Events|IIN1Class3Events) != 0
}

// HasDeviceRestart returns true if device restart was detected
func (iin IIN) HasDeviceRestart() bool {
	return iin.IIN1&IIN1DeviceRestart != 0
}

// HasParameterError returns true if there was a parameter error
func (iin IIN) HasParameterError() bool {
	return iin.IIN2&IIN2ParameterError != 0
}

// HasEventBufferOverflow returns true if event buffer overflow occurred
func (iin IIN) HasEventBufferOverflow() bool {
	return iin.IIN2&IIN2EventBufferOverflow != 0
}

// Merge returns the union of both indications
func (iin IIN) Merge(other IIN) IIN {
	return IIN{IIN1: iin.IIN1 | other.IIN1, IIN2: iin.IIN2 | other.IIN2}
}

// WithIIN1 sets or clears bits in the first byte
func (iin IIN) WithIIN1(mask uint8, set bool) IIN {
	if set {
		iin.IIN1 |= mask
	} else {
		iin.IIN1 &^= mask
	}
	return iin
}

// WithIIN2 sets or clears bits in the second byte
func (iin IIN) WithIIN2(mask uint8, set bool) IIN {
	if set {
		iin.IIN2 |= mask
	} else {
		iin.IIN2 &^= mask
	}
	return iin
}

// IsZero reports whether no indication is set
func (iin IIN) IsZero() bool {
	return iin.IIN1 == 0 && iin.IIN2 == 0
}

func (iin IIN) String() string {
	return fmt.Sprintf("[%02X %02X]", iin.IIN1, iin.IIN2)
}
