package app

import (
	"errors"
	"fmt"
	"strings"
)

// Application control octet
const (
	AppCtrlFIR     uint8 = 1 << 7
	AppCtrlFIN     uint8 = 1 << 6
	AppCtrlCON     uint8 = 1 << 5
	AppCtrlUNS     uint8 = 1 << 4
	AppCtrlSeqMask uint8 = 0x0F
)

const (
	// RequestHeaderSize is control plus function code
	RequestHeaderSize = 2
	// ResponseHeaderSize adds the two IIN octets
	ResponseHeaderSize = RequestHeaderSize + 2
)

var ErrAPDUTooShort = errors.New("APDU too short")

// APDU is one application fragment. Objects holds the raw object headers
// and values following the header.
type APDU struct {
	Control  uint8
	FIR      bool
	FIN      bool
	CON      bool
	UNS      bool
	Sequence uint8

	FunctionCode FunctionCode
	IIN          IIN
	Objects      []byte
}

func newSingleFragment(fc FunctionCode, seq uint8, objects []byte) *APDU {
	return &APDU{FIR: true, FIN: true, Sequence: seq & AppCtrlSeqMask, FunctionCode: fc, Objects: objects}
}

// NewRequestAPDU creates a single-fragment request
func NewRequestAPDU(fc FunctionCode, seq uint8, objects []byte) *APDU {
	return newSingleFragment(fc, seq, objects)
}

// NewResponseAPDU creates a single-fragment solicited response
func NewResponseAPDU(seq uint8, iin IIN, objects []byte) *APDU {
	a := newSingleFragment(FuncResponse, seq, objects)
	a.IIN = iin
	return a
}

// NewUnsolicitedResponseAPDU creates an unsolicited response. Unsolicited
// responses always request confirmation.
func NewUnsolicitedResponseAPDU(seq uint8, iin IIN, objects []byte) *APDU {
	a := NewResponseAPDU(seq, iin, objects)
	a.FunctionCode = FuncUnsolicitedResponse
	a.CON, a.UNS = true, true
	return a
}

// NewConfirmAPDU creates an application confirm for seq. uns must match the
// UNS bit of the fragment being confirmed.
func NewConfirmAPDU(seq uint8, uns bool) *APDU {
	a := newSingleFragment(FuncConfirm, seq, nil)
	a.UNS = uns
	return a
}

func (a *APDU) buildControl() {
	a.Control = a.Sequence & AppCtrlSeqMask
	for _, f := range []struct {
		set bool
		bit uint8
	}{{a.FIR, AppCtrlFIR}, {a.FIN, AppCtrlFIN}, {a.CON, AppCtrlCON}, {a.UNS, AppCtrlUNS}} {
		if f.set {
			a.Control |= f.bit
		}
	}
}

func (a *APDU) parseControl() {
	c := a.Control
	a.FIR = c&AppCtrlFIR != 0
	a.FIN = c&AppCtrlFIN != 0
	a.CON = c&AppCtrlCON != 0
	a.UNS = c&AppCtrlUNS != 0
	a.Sequence = c & AppCtrlSeqMask
}

// Serialize encodes the fragment, refreshing Control from the flag fields
func (a *APDU) Serialize() []byte {
	a.buildControl()
	out := make([]byte, 0, ResponseHeaderSize+len(a.Objects))
	out = append(out, a.Control, uint8(a.FunctionCode))
	if a.IsResponse() {
		out = append(out, a.IIN.IIN1, a.IIN.IIN2)
	}
	return append(out, a.Objects...)
}

// Parse decodes a fragment. Objects aliases data.
func Parse(data []byte) (*APDU, error) {
	if len(data) < RequestHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrAPDUTooShort, len(data))
	}
	a := &APDU{Control: data[0], FunctionCode: FunctionCode(data[1])}
	a.parseControl()

	rest := data[RequestHeaderSize:]
	if a.IsResponse() {
		if len(data) < ResponseHeaderSize {
			return nil, fmt.Errorf("%w: response without IIN", ErrAPDUTooShort)
		}
		a.IIN = IIN{IIN1: data[2], IIN2: data[3]}
		rest = data[ResponseHeaderSize:]
	}
	if len(rest) > 0 {
		a.Objects = rest
	}
	return a, nil
}

func (a *APDU) SetSequence(seq uint8) { a.Sequence = seq & AppCtrlSeqMask }

func (a *APDU) IsResponse() bool { return a.FunctionCode.IsResponse() }

func (a *APDU) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s seq=%d", a.FunctionCode, a.Sequence)
	for _, f := range []struct {
		set  bool
		name string
	}{{a.FIR, "FIR"}, {a.FIN, "FIN"}, {a.CON, "CON"}, {a.UNS, "UNS"}} {
		if f.set {
			sb.WriteString(" " + f.name)
		}
	}
	if a.IsResponse() {
		fmt.Fprintf(&sb, " iin=%02X%02X", a.IIN.IIN1, a.IIN.IIN2)
	}
	fmt.Fprintf(&sb, " objects=%dB", len(a.Objects))
	return sb.String()
}

// NextSequence returns the sequence number following seq
func NextSequence(seq uint8) uint8 {
	return (seq + 1) & AppCtrlSeqMask
}
