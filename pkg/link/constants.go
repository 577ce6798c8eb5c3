package link

import "errors"

// Start bytes
const (
	StartByte1 uint8 = 0x05 // First start byte
	StartByte2 uint8 = 0x64 // Second start byte
)

// Frame sizes
const (
	HeaderSize   = 10  // Link header including start bytes and header CRC
	MinFrameSize = 10  // A frame without user data is just the header
	MaxDataSize  = 250 // Maximum user data in a frame
	BlockSize    = 16  // User data CRC block size
	MaxFrameSize = HeaderSize + MaxDataSize + 2*((MaxDataSize+BlockSize-1)/BlockSize)
)

// Broadcast destination addresses
const (
	AddrBroadcastOptionalConfirm uint16 = 0xFFFD
	AddrBroadcastConfirm         uint16 = 0xFFFE
	AddrBroadcastNoConfirm       uint16 = 0xFFFF
)

// IsBroadcast reports whether addr is one of the reserved broadcast addresses
func IsBroadcast(addr uint16) bool {
	return addr >= AddrBroadcastOptionalConfirm
}

// FunctionCode is the 4-bit link function code
type FunctionCode uint8

const (
	// Primary to Secondary
	FuncResetLink           FunctionCode = 0x00 // Reset link
	FuncResetUserProcess    FunctionCode = 0x01 // Reset user process (obsolete)
	FuncTestLinkStates      FunctionCode = 0x02 // Test link states
	FuncUserDataConfirmed   FunctionCode = 0x03 // User data with confirmation
	FuncUserDataUnconfirmed FunctionCode = 0x04 // User data without confirmation
	FuncRequestLinkStatus   FunctionCode = 0x09 // Request link status

	// Secondary to Primary
	FuncAck                FunctionCode = 0x00 // ACK
	FuncNack               FunctionCode = 0x01 // NACK
	FuncLinkStatusResponse FunctionCode = 0x0B // Link status response
	FuncLinkNotUsed        FunctionCode = 0x0F // Link not used/supported
)

// Control field bits
const (
	CtrlDIR      uint8 = 0x80 // Direction bit (1=master to outstation)
	CtrlPRM      uint8 = 0x40 // Primary bit (1=from primary station)
	CtrlFCB      uint8 = 0x20 // Frame Count Bit
	CtrlFCV      uint8 = 0x10 // Frame Count Valid
	CtrlDFC      uint8 = 0x10 // Data Flow Control (secondary frames)
	CtrlFuncMask uint8 = 0x0F // Function code mask
)

// Errors
var (
	ErrInvalidStartBytes = errors.New("invalid start bytes")
	ErrInvalidLength     = errors.New("invalid frame length")
	ErrInvalidCRC        = errors.New("invalid CRC")
	ErrFrameTooShort     = errors.New("frame too short")
	ErrFrameTooLong      = errors.New("frame too long")
	ErrInvalidDirection  = errors.New("invalid direction bit")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrNotPrimary        = errors.New("frame not sent by a primary station")
	ErrTooManyFailures   = errors.New("too many consecutive link failures")
)

// Direction indicates frame direction
type Direction bool

const (
	DirectionMasterToOutstation Direction = true
	DirectionOutstationToMaster Direction = false
)

// String returns string representation of Direction
func (d Direction) String() string {
	if d {
		return "Master->Outstation"
	}
	return "Outstation->Master"
}

// IsPrimary indicates if frame is from primary station
type IsPrimary bool

const (
	PrimaryFrame   IsPrimary = true
	SecondaryFrame IsPrimary = false
)

// String returns string representation of IsPrimary
func (p IsPrimary) String() string {
	if p {
		return "Primary"
	}
	return "Secondary"
}
