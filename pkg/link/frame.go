package link

import (
	"fmt"
	"strings"
)

// Frame represents a DNP3 link layer frame
type Frame struct {
	Control     uint8  // Control byte
	Destination uint16 // Destination address
	Source      uint16 // Source address

	// Derived from the control byte
	Dir          Direction
	IsPrimary    IsPrimary
	FCB          bool // Frame Count Bit (primary frames)
	FCV          bool // Frame Count Valid (primary frames)
	DFC          bool // Data Flow Control (secondary frames)
	FunctionCode FunctionCode

	UserData []byte // User data without CRCs
}

// NewFrame creates a new link frame
func NewFrame(dir Direction, isPrimary IsPrimary, fc FunctionCode, dst, src uint16, data []byte) *Frame {
	frame := &Frame{
		Dir:          dir,
		IsPrimary:    isPrimary,
		FunctionCode: fc,
		Destination:  dst,
		Source:       src,
		UserData:     data,
	}
	frame.buildControl()
	return frame
}

// NewUserDataFrame builds the unconfirmed primary frame an outstation uses to
// carry transport segments towards a master
func NewUserDataFrame(dst, src uint16, data []byte) *Frame {
	return NewFrame(DirectionOutstationToMaster, PrimaryFrame, FuncUserDataUnconfirmed, dst, src, data)
}

func (f *Frame) buildControl() {
	f.Control = uint8(f.FunctionCode) & CtrlFuncMask

	if f.Dir == DirectionMasterToOutstation {
		f.Control |= CtrlDIR
	}

	if f.IsPrimary == PrimaryFrame {
		f.Control |= CtrlPRM
		if f.FCV {
			f.Control |= CtrlFCV
			if f.FCB {
				f.Control |= CtrlFCB
			}
		}
	} else if f.DFC {
		f.Control |= CtrlDFC
	}
}

func (f *Frame) parseControl() {
	f.FunctionCode = FunctionCode(f.Control & CtrlFuncMask)
	f.Dir = Direction((f.Control & CtrlDIR) != 0)
	f.IsPrimary = IsPrimary((f.Control & CtrlPRM) != 0)

	if f.IsPrimary == PrimaryFrame {
		f.FCV = (f.Control & CtrlFCV) != 0
		f.FCB = (f.Control & CtrlFCB) != 0
	} else {
		f.DFC = (f.Control & CtrlDFC) != 0
	}
}

// SetFCB sets the Frame Count Bit and Frame Count Valid
func (f *Frame) SetFCB(fcb bool) {
	f.FCB = fcb
	f.FCV = true
	f.buildControl()
}

// Encode converts the frame to wire format with CRCs
func (f *Frame) Encode() ([]byte, error) {
	return Encode(f)
}

// Encode converts a frame to wire format with CRCs
func Encode(f *Frame) ([]byte, error) {
	dataLen := len(f.UserData)
	if dataLen > MaxDataSize {
		return nil, ErrFrameTooLong
	}
	f.buildControl()

	out := make([]byte, 0, encodedSize(dataLen))
	out = append(out,
		StartByte1, StartByte2,
		byte(dataLen+5), // control + addresses
		f.Control,
		byte(f.Destination), byte(f.Destination>>8),
		byte(f.Source), byte(f.Source>>8),
	)
	crc := CalculateCRC(out)
	out = append(out, byte(crc), byte(crc>>8))

	if dataLen > 0 {
		out = append(out, AddCRCs(f.UserData)...)
	}
	return out, nil
}

// Decode parses one frame from the start of data and returns it with the
// number of bytes consumed. CRC failures return *CrcError, anything else
// that cannot be a frame returns *FramingError.
func Decode(data []byte) (*Frame, int, error) {
	if len(data) < MinFrameSize {
		return nil, 0, &FramingError{Err: ErrFrameTooShort}
	}

	if !VerifyCRC(data[:HeaderSize]) {
		return nil, 0, &CrcError{
			Block:    -1,
			Expected: CalculateCRC(data[:HeaderSize-2]),
			Received: uint16(data[8]) | uint16(data[9])<<8,
		}
	}

	if data[0] != StartByte1 || data[1] != StartByte2 {
		return nil, 0, &FramingError{Err: ErrInvalidStartBytes}
	}

	length := int(data[2])
	if length < 5 {
		return nil, 0, &FramingError{Err: ErrInvalidLength}
	}

	dataLen := length - 5
	size := encodedSize(dataLen)
	if len(data) < size {
		return nil, 0, &FramingError{Err: ErrFrameTooShort}
	}

	frame := &Frame{
		Control:     data[3],
		Destination: uint16(data[4]) | uint16(data[5])<<8,
		Source:      uint16(data[6]) | uint16(data[7])<<8,
	}
	frame.parseControl()

	if dataLen > 0 {
		userData, err := RemoveCRCs(data[HeaderSize:size])
		if err != nil {
			return nil, 0, err
		}
		frame.UserData = userData
	}

	return frame, size, nil
}

// String returns a string representation of the frame
func (f *Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frame{Dir=%s, %s, Func=%d, Dst=%d, Src=%d, ", f.Dir, f.IsPrimary, f.FunctionCode, f.Destination, f.Source)
	if f.IsPrimary == PrimaryFrame && f.FCV {
		fmt.Fprintf(&b, "FCB=%t, ", f.FCB)
	}
	fmt.Fprintf(&b, "DataLen=%d}", len(f.UserData))
	return b.String()
}
