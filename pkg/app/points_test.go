package app

import (
	"bytes"
	"math"
	"testing"

	"avaneesh/dnp3-outstation/pkg/types"
)

func TestEncodeStaticDefaults(t *testing.T) {
	online := types.FlagOnline

	tests := []struct {
		name     string
		class    types.PointClass
		value    any
		expected []byte
	}{
		{"binary on", types.PointClassBinary, true, []byte{0x81}},
		{"binary off", types.PointClassBinary, false, []byte{0x01}},
		{"double bit on", types.PointClassDoubleBitBinary, types.DoubleBitOn, []byte{0x81}},
		{"double bit off", types.PointClassDoubleBitBinary, types.DoubleBitOff, []byte{0x41}},
		{"binary output", types.PointClassBinaryOutputStatus, true, []byte{0x81}},
		{"counter", types.PointClassCounter, uint32(0x01020304), []byte{0x01, 0x04, 0x03, 0x02, 0x01}},
		{"frozen counter", types.PointClassFrozenCounter, uint32(7), []byte{0x01, 0x07, 0x00, 0x00, 0x00}},
		{"analog", types.PointClassAnalog, 1.0, []byte{0x01, 0x00, 0x00, 0x80, 0x3F}},
		{"analog output", types.PointClassAnalogOutputStatus, -2.0, []byte{0x01, 0x00, 0x00, 0x00, 0xC0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeStatic(tt.class, VariationAny, online, tt.value)
			if err != nil {
				t.Fatalf("EncodeStatic failed: %v", err)
			}
			if !bytes.Equal(data, tt.expected) {
				t.Errorf("Expected % X, got % X", tt.expected, data)
			}
		})
	}
}

func TestStaticRoundTrip(t *testing.T) {
	tests := []struct {
		class     types.PointClass
		variation uint8
		value     any
		expected  any
	}{
		{types.PointClassAnalog, AnalogInput32Bit, 12.4, 12.0},
		{types.PointClassAnalog, AnalogInput16Bit, -40000.0, float64(math.MinInt16)},
		{types.PointClassAnalog, AnalogInputFloat, 3.14, float64(float32(3.14))},
		{types.PointClassAnalog, AnalogInputDouble, 3.14, 3.14},
		{types.PointClassAnalog, AnalogInput32BitNoFlag, 99.0, 99.0},
		{types.PointClassAnalogOutputStatus, 1, 5.0, 5.0},
		{types.PointClassAnalogOutputStatus, 4, 2.5, 2.5},
		{types.PointClassCounter, Counter16Bit, uint32(70000), uint32(70000 & 0xFFFF)},
		{types.PointClassCounter, Counter32BitNoFlag, uint32(42), uint32(42)},
		{types.PointClassBinary, 0, true, true},
	}

	for _, tt := range tests {
		enc := StaticEncoding(tt.class)
		variation := tt.variation
		if variation == 0 {
			variation = enc.Variation
		}
		if !SupportsStaticVariation(tt.class, variation) {
			t.Errorf("%s v%d should be supported", tt.class, variation)
			continue
		}
		data, err := EncodeStatic(tt.class, variation, types.FlagOnline, tt.value)
		if err != nil {
			t.Fatalf("%s v%d: %v", tt.class, variation, err)
		}
		p, err := DecodePoint(enc.Group, variation, data)
		if err != nil {
			t.Fatalf("%s v%d decode: %v", tt.class, variation, err)
		}
		if p.Value != tt.expected {
			t.Errorf("%s v%d: expected %v, got %v", tt.class, variation, tt.expected, p.Value)
		}
	}
}

func TestEncodeStaticUnsupportedVariation(t *testing.T) {
	if SupportsStaticVariation(types.PointClassBinary, 1) {
		t.Error("packed binary should not be supported")
	}
	if _, err := EncodeStatic(types.PointClassAnalog, 9, types.FlagOnline, 1.0); err == nil {
		t.Error("Expected error for g30v9")
	}
}

func TestEventRoundTrip(t *testing.T) {
	ts := types.DNP3Time(1_700_000_000_123)

	tests := []struct {
		class types.PointClass
		value any
		size  int
	}{
		{types.PointClassBinary, true, 7},
		{types.PointClassDoubleBitBinary, types.DoubleBitOn, 7},
		{types.PointClassBinaryOutputStatus, false, 7},
		{types.PointClassCounter, uint32(9), 5},
		{types.PointClassFrozenCounter, uint32(10), 5},
		{types.PointClassAnalog, 2.5, 11},
		{types.PointClassAnalogOutputStatus, -1.5, 11},
	}

	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			data := EncodeEvent(tt.class, types.FlagOnline, tt.value, ts)
			if len(data) != tt.size {
				t.Fatalf("Expected %d bytes, got %d", tt.size, len(data))
			}
			enc := EventEncoding(tt.class)
			if ObjectSize(enc.Group, enc.Variation) != tt.size {
				t.Errorf("ObjectSize(g%dv%d) disagrees with encoder", enc.Group, enc.Variation)
			}
			p, err := DecodePoint(enc.Group, enc.Variation, data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if p.Value != tt.value {
				t.Errorf("Expected %v, got %v", tt.value, p.Value)
			}
			if tt.size != 5 && p.Time != ts {
				t.Errorf("Expected time %d, got %d", ts, p.Time)
			}
		})
	}
}

func TestClassForGroup(t *testing.T) {
	c, event, ok := ClassForGroup(GroupAnalogInput)
	if !ok || event || c != types.PointClassAnalog {
		t.Errorf("g30: got %s event=%v ok=%v", c, event, ok)
	}
	c, event, ok = ClassForGroup(GroupAnalogOutputEvent)
	if !ok || !event || c != types.PointClassAnalogOutputStatus {
		t.Errorf("g42: got %s event=%v ok=%v", c, event, ok)
	}
	if _, _, ok := ClassForGroup(GroupTimeDate); ok {
		t.Error("g50 is not a point group")
	}
}
