package app

import (
	"bytes"
	"errors"
	"testing"

	"avaneesh/dnp3-outstation/pkg/types"
)

// TestAPDU_WireVectors checks serialisation against fragments captured from
// a master/outstation exchange
func TestAPDU_WireVectors(t *testing.T) {
	tests := []struct {
		name string
		apdu *APDU
		wire []byte
	}{
		{
			name: "class 0 poll",
			apdu: NewRequestAPDU(FuncRead, 5, []byte{0x3C, 0x01, 0x06}),
			wire: []byte{0xC5, 0x01, 0x3C, 0x01, 0x06},
		},
		{
			name: "null response after restart",
			apdu: NewResponseAPDU(3, types.IIN{IIN1: types.IIN1DeviceRestart}, nil),
			wire: []byte{0xC3, 0x81, 0x80, 0x00},
		},
		{
			name: "unsolicited with binary event",
			apdu: NewUnsolicitedResponseAPDU(7, types.IIN{IIN1: 0x02}, []byte{0x02, 0x01, 0x28, 0x01, 0x00, 0x00, 0x00, 0x81}),
			wire: []byte{0xF7, 0x82, 0x02, 0x00, 0x02, 0x01, 0x28, 0x01, 0x00, 0x00, 0x00, 0x81},
		},
		{
			name: "unsolicited confirm",
			apdu: NewConfirmAPDU(3, true),
			wire: []byte{0xD3, 0x00},
		},
		{
			name: "solicited confirm",
			apdu: NewConfirmAPDU(9, false),
			wire: []byte{0xC9, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apdu.Serialize(); !bytes.Equal(got, tt.wire) {
				t.Errorf("Expected % X, got % X", tt.wire, got)
			}

			parsed, err := Parse(tt.wire)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if parsed.FunctionCode != tt.apdu.FunctionCode || parsed.Sequence != tt.apdu.Sequence {
				t.Errorf("Expected %v seq %d, got %v seq %d",
					tt.apdu.FunctionCode, tt.apdu.Sequence, parsed.FunctionCode, parsed.Sequence)
			}
			if parsed.CON != tt.apdu.CON || parsed.UNS != tt.apdu.UNS {
				t.Errorf("Expected CON=%v UNS=%v, got CON=%v UNS=%v", tt.apdu.CON, tt.apdu.UNS, parsed.CON, parsed.UNS)
			}
			if parsed.IsResponse() && parsed.IIN != tt.apdu.IIN {
				t.Errorf("Expected IIN %v, got %v", tt.apdu.IIN, parsed.IIN)
			}
			if len(parsed.Objects) != 0 || len(tt.apdu.Objects) != 0 {
				if !bytes.Equal(parsed.Objects, tt.apdu.Objects) {
					t.Errorf("Expected objects % X, got % X", tt.apdu.Objects, parsed.Objects)
				}
			}
		})
	}
}

func TestAPDU_ControlByte(t *testing.T) {
	tests := []struct {
		name               string
		fir, fin, con, uns bool
		seq                uint8
		expected           uint8
	}{
		{"single fragment", true, true, false, false, 0, 0xC0},
		{"highest sequence", true, true, false, false, 15, 0xCF},
		{"first of many", true, false, false, false, 2, 0x82},
		{"middle fragment", false, false, true, false, 3, 0x23},
		{"last fragment", false, true, false, false, 4, 0x44},
		{"unsolicited", true, true, true, true, 0, 0xF0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apdu := &APDU{FIR: tt.fir, FIN: tt.fin, CON: tt.con, UNS: tt.uns, Sequence: tt.seq}
			apdu.buildControl()
			if apdu.Control != tt.expected {
				t.Errorf("Expected 0x%02X, got 0x%02X", tt.expected, apdu.Control)
			}
		})
	}
}

func TestNewRequestAPDU_SequenceMasked(t *testing.T) {
	apdu := NewRequestAPDU(FuncRead, 20, nil)
	if apdu.Sequence != 4 {
		t.Errorf("Expected sequence 4, got %d", apdu.Sequence)
	}
	if !apdu.FIR || !apdu.FIN || apdu.CON || apdu.UNS {
		t.Errorf("Expected a single unconfirmed fragment, got %v", apdu)
	}
}

func TestParse_TooShort(t *testing.T) {
	for _, data := range [][]byte{nil, {0xC0}, {0xC0, 0x81, 0x00}} {
		if _, err := Parse(data); !errors.Is(err, ErrAPDUTooShort) {
			t.Errorf("Parse(% X): expected ErrAPDUTooShort, got %v", data, err)
		}
	}
}

func TestNextSequence(t *testing.T) {
	for seq, want := range map[uint8]uint8{0: 1, 14: 15, 15: 0} {
		if got := NextSequence(seq); got != want {
			t.Errorf("NextSequence(%d): expected %d, got %d", seq, want, got)
		}
	}
}

func TestFunctionCode_String(t *testing.T) {
	if FuncSaveConfiguration.String() != "SaveConfiguration" {
		t.Errorf("Unexpected name %q", FuncSaveConfiguration.String())
	}
	if FunctionCode(0x70).String() != "Unknown(0x70)" {
		t.Errorf("Unexpected name %q", FunctionCode(0x70).String())
	}
	if !FuncDirectOperateNoAck.NoAck() || FuncDirectOperate.NoAck() {
		t.Error("NoAck classification wrong")
	}
}
