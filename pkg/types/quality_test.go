package types

import (
	"testing"
)

// TestFlags_CommonBits tests the bits shared by every point class
func TestFlags_CommonBits(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		check func(Flags) bool
		want  bool
	}{
		{"Online set", FlagOnline, Flags.IsOnline, true},
		{"Online not set", Flags(0x00), Flags.IsOnline, false},
		{"Restart set", FlagRestart, Flags.HasRestart, true},
		{"CommLost set", FlagCommLost, Flags.HasCommLost, true},
		{"Remote forced", FlagRemoteForced, Flags.IsForced, true},
		{"Local forced", FlagLocalForced | FlagOnline, Flags.IsForced, true},
		{"Not forced", FlagOnline | FlagRestart, Flags.IsForced, false},
		{"Local forced only", FlagLocalForced, Flags.IsLocalForced, true},
		{"Remote forced is not local", FlagRemoteForced, Flags.IsLocalForced, false},
		{"State set", FlagState | FlagOnline, Flags.State, true},
		{"State not set", FlagChatterFilter, Flags.State, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.flags); got != tt.want {
				t.Errorf("%s: got %v, want %v (flags=0x%02X)", tt.name, got, tt.want, tt.flags)
			}
		})
	}
}

// TestFlags_WithState checks the binary state bit leaves quality bits alone
func TestFlags_WithState(t *testing.T) {
	f := FlagOnline | FlagRestart
	on := f.WithState(true)
	if on != FlagOnline|FlagRestart|FlagState {
		t.Errorf("Expected 0x83, got 0x%02X", on)
	}
	if off := on.WithState(false); off != f {
		t.Errorf("Expected 0x%02X, got 0x%02X", f, off)
	}
}

// TestFlags_DoubleBit checks the two upper bits round-trip a double-bit state
func TestFlags_DoubleBit(t *testing.T) {
	for _, v := range []DoubleBitValue{DoubleBitIntermediate, DoubleBitOff, DoubleBitOn, DoubleBitIndeterminate} {
		f := FlagOnline.WithDoubleBit(v)
		if f.DoubleBit() != v {
			t.Errorf("Expected %s, got %s", v, f.DoubleBit())
		}
		if !f.IsOnline() {
			t.Errorf("Online bit lost for %s", v)
		}
	}
	if got := FlagOnline.WithDoubleBit(DoubleBitOn); got != 0x81 {
		t.Errorf("Expected 0x81, got 0x%02X", got)
	}
}

// TestFlags_WithOnlineRestart tests setting and clearing online/restart
func TestFlags_WithOnlineRestart(t *testing.T) {
	f := FlagRestart.WithOnline(true)
	if f != FlagRestart|FlagOnline {
		t.Errorf("Expected 0x03, got 0x%02X", f)
	}
	f = f.WithRestart(false)
	if f != FlagOnline {
		t.Errorf("Expected 0x01, got 0x%02X", f)
	}
	if f.WithOnline(false) != 0 {
		t.Errorf("Expected 0x00, got 0x%02X", f.WithOnline(false))
	}
}

// TestIIN_Bits tests IIN composition helpers
func TestIIN_Bits(t *testing.T) {
	iin := IIN{}.WithIIN1(IIN1DeviceRestart, true).WithIIN1(IIN1Class1Events, true)
	if !iin.HasDeviceRestart() || !iin.HasAnyClassEvents() {
		t.Errorf("Expected restart and class 1 bits, got %s", iin)
	}
	iin = iin.WithIIN1(IIN1DeviceRestart, false)
	if iin.HasDeviceRestart() {
		t.Errorf("Restart bit not cleared: %s", iin)
	}

	merged := iin.Merge(IIN{IIN2: IIN2ParameterError | IIN2EventBufferOverflow})
	if !merged.HasParameterError() || !merged.HasEventBufferOverflow() {
		t.Errorf("Expected IIN2 bits after merge, got %s", merged)
	}
	if merged.IIN1 != IIN1Class1Events {
		t.Errorf("Expected IIN1 0x02, got 0x%02X", merged.IIN1)
	}
	if !(IIN{}).IsZero() {
		t.Errorf("Expected zero IIN")
	}
}

// TestDNP3Time_48Bit checks the wire encoding is 6 bytes little endian
func TestDNP3Time_48Bit(t *testing.T) {
	ts := DNP3Time(0x0000_0123_4567_89AB)
	buf := make([]byte, 6)
	ts.PutTime48(buf)

	expected := []byte{0xAB, 0x89, 0x67, 0x45, 0x23, 0x01}
	for i := range expected {
		if buf[i] != expected[i] {
			t.Fatalf("Byte %d: expected 0x%02X, got 0x%02X", i, expected[i], buf[i])
		}
	}
	if got := Time48(buf); got != ts {
		t.Errorf("Expected %d, got %d", ts, got)
	}
}
