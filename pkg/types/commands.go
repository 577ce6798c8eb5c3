package types

import "fmt"

// ControlCode is the first byte of a CROB
// Bits 0..3 carry the operation type, bit 4 queue, bit 5 clear and bits 6..7
// the trip/close code.
type ControlCode uint8

// Common control code values
const (
	ControlCodeNUL      ControlCode = 0x00 // No operation
	ControlCodePulseOn  ControlCode = 0x01 // Pulse output on
	ControlCodePulseOff ControlCode = 0x02 // Pulse output off
	ControlCodeLatchOn  ControlCode = 0x03 // Latch output on
	ControlCodeLatchOff ControlCode = 0x04 // Latch output off
	ControlCodeCloseOn  ControlCode = 0x41 // Close with pulse
	ControlCodeTripOff  ControlCode = 0x81 // Trip with pulse
)

// OpType is the operation type nibble of a control code
type OpType uint8

const (
	OpTypeNUL      OpType = 0
	OpTypePulseOn  OpType = 1
	OpTypePulseOff OpType = 2
	OpTypeLatchOn  OpType = 3
	OpTypeLatchOff OpType = 4
)

// TripCloseCode is the upper two bits of a control code
type TripCloseCode uint8

const (
	TripCloseNUL   TripCloseCode = 0
	TripCloseClose TripCloseCode = 1
	TripCloseTrip  TripCloseCode = 2
)

// OpType returns the operation type nibble
func (c ControlCode) OpType() OpType {
	return OpType(c & 0x0F)
}

// TripClose returns the trip/close code
func (c ControlCode) TripClose() TripCloseCode {
	return TripCloseCode(c >> 6)
}

// Queue reports the queue bit
func (c ControlCode) Queue() bool {
	return c&0x10 != 0
}

// Clear reports the clear bit
func (c ControlCode) Clear() bool {
	return c&0x20 != 0
}

// TargetState resolves the output state a control code drives towards.
// ok is false for NUL and for trip/close codes that are not defined.
func (c ControlCode) TargetState() (state bool, ok bool) {
	switch c.TripClose() {
	case TripCloseClose:
		return true, true
	case TripCloseTrip:
		return false, true
	case TripCloseNUL:
	default:
		return false, false
	}
	switch c.OpType() {
	case OpTypeLatchOn, OpTypePulseOn:
		return true, true
	case OpTypeLatchOff, OpTypePulseOff:
		return false, true
	}
	return false, false
}

// CROB (Control Relay Output Block) represents a binary control command
type CROB struct {
	Code      ControlCode   // Control code
	Count     uint8         // Number of times to repeat operation
	OnTimeMs  uint32        // Time the output is on (milliseconds)
	OffTimeMs uint32        // Time between operations (milliseconds)
	Status    CommandStatus // Status of the command
}

func (c CROB) String() string {
	return fmt.Sprintf("CROB{Code=0x%02X, Count=%d, On=%dms, Off=%dms, Status=%s}",
		uint8(c.Code), c.Count, c.OnTimeMs, c.OffTimeMs, c.Status)
}

// AnalogOutput represents an analog output command (group 41)
// Variation records which wire encoding carried the value so the echo uses
// the same one.
type AnalogOutput struct {
	Value     float64
	Variation uint8
	Status    CommandStatus
}

func (a AnalogOutput) String() string {
	return fmt.Sprintf("AnalogOutput{Value=%g, Var=%d, Status=%s}", a.Value, a.Variation, a.Status)
}

// CommandStatus indicates the result of a command operation
type CommandStatus uint8

// DNP3 Command Status values
const (
	CommandStatusSuccess           CommandStatus = 0   // Command accepted and executed
	CommandStatusTimeout           CommandStatus = 1   // Select expired before operate
	CommandStatusNoSelect          CommandStatus = 2   // No previous SELECT for this OPERATE
	CommandStatusFormatError       CommandStatus = 3   // Command format error
	CommandStatusNotSupported      CommandStatus = 4   // Command not supported
	CommandStatusAlreadyActive     CommandStatus = 5   // Command already in progress
	CommandStatusHardwareError     CommandStatus = 6   // Hardware error
	CommandStatusLocal             CommandStatus = 7   // In local mode, command rejected
	CommandStatusTooManyOps        CommandStatus = 8   // Too many operations requested
	CommandStatusNotAuthorized     CommandStatus = 9   // Not authorized
	CommandStatusAutomationInhibit CommandStatus = 10  // Automation inhibit prevents operation
	CommandStatusProcessingLimited CommandStatus = 11  // Processing limited
	CommandStatusOutOfRange        CommandStatus = 12  // Value out of range
	CommandStatusNonParticipating  CommandStatus = 126 // Device is non-participating
	CommandStatusUndefined         CommandStatus = 127 // Undefined error
)

var commandStatusNames = map[CommandStatus]string{
	CommandStatusSuccess:           "Success",
	CommandStatusTimeout:           "Timeout",
	CommandStatusNoSelect:          "NoSelect",
	CommandStatusFormatError:       "FormatError",
	CommandStatusNotSupported:      "NotSupported",
	CommandStatusAlreadyActive:     "AlreadyActive",
	CommandStatusHardwareError:     "HardwareError",
	CommandStatusLocal:             "Local",
	CommandStatusTooManyOps:        "TooManyOps",
	CommandStatusNotAuthorized:     "NotAuthorized",
	CommandStatusAutomationInhibit: "AutomationInhibit",
	CommandStatusProcessingLimited: "ProcessingLimited",
	CommandStatusOutOfRange:        "OutOfRange",
	CommandStatusNonParticipating:  "NonParticipating",
	CommandStatusUndefined:         "Undefined",
}

// String returns a string representation of CommandStatus
func (s CommandStatus) String() string {
	if name, ok := commandStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CommandStatus(%d)", uint8(s))
}

// IsSuccess returns true if the command was successful
func (s CommandStatus) IsSuccess() bool {
	return s == CommandStatusSuccess
}
