package app

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"avaneesh/dnp3-outstation/pkg/types"
)

func TestParseRequestClassRead(t *testing.T) {
	msg, err := ParseRequest(BuildEventPollRequest(4).Serialize())
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	if msg.Function() != FuncRead || msg.APDU.Sequence != 4 {
		t.Errorf("Unexpected APDU %s", msg.APDU)
	}
	if len(msg.Blocks) != 3 {
		t.Fatalf("Expected 3 blocks, got %d", len(msg.Blocks))
	}
	for i, b := range msg.Blocks {
		if b.Header.Group != GroupClassData || ClassFromVariation(b.Header.Variation) != ClassField(2<<i) {
			t.Errorf("Block %d: unexpected header %+v", i, b.Header)
		}
		if len(b.Objects) != 0 {
			t.Errorf("Block %d: selector should carry no objects", i)
		}
	}
}

func TestParseRequestRangeRead(t *testing.T) {
	msg, err := ParseRequest(BuildReadRequest(0, BuildRangeRead(GroupAnalogInput, 0, 2, 4)).Serialize())
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	r, ok := msg.Blocks[0].Header.Range.(StartStopRange)
	if !ok || r.Start != 2 || r.Stop != 4 {
		t.Errorf("Unexpected range %+v", msg.Blocks[0].Header.Range)
	}
}

func TestParseRequestIndexedRead(t *testing.T) {
	objects := []byte{0x1E, 0x00, 0x17, 0x02, 0x05, 0x09}
	msg, err := ParseRequest(BuildReadRequest(0, objects).Serialize())
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	objs := msg.Blocks[0].Objects
	if len(objs) != 2 || objs[0].Index != 5 || objs[1].Index != 9 {
		t.Errorf("Unexpected indices %+v", objs)
	}
}

func TestParseRequestCROB(t *testing.T) {
	crob := NewLatchOn()
	sel, _ := BuildSelectOperateRequest(7, 3, crob)

	msg, err := ParseRequest(sel.Serialize())
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	if msg.Function() != FuncSelect {
		t.Errorf("Expected Select, got %s", msg.Function())
	}
	objs := msg.Blocks[0].Objects
	if len(objs) != 1 || objs[0].Index != 3 {
		t.Fatalf("Unexpected objects %+v", objs)
	}
	parsed, err := DecodeCROB(objs[0].Data)
	if err != nil {
		t.Fatalf("DecodeCROB failed: %v", err)
	}
	if parsed != crob {
		t.Errorf("Expected %v, got %v", crob, parsed)
	}
}

func TestParseRequestTimeSyncAndRestart(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	msg, err := ParseRequest(BuildTimeSyncRequest(1, now).Serialize())
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	ts, err := DecodeTimeAndDate(msg.Blocks[0].Objects[0].Data)
	if err != nil || ts != types.FromTime(now) {
		t.Errorf("Expected %d, got %d (%v)", types.FromTime(now), ts, err)
	}

	msg, err = ParseRequest(BuildClearRestartRequest(2).Serialize())
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	objs := msg.Blocks[0].Objects
	if len(objs) != 1 || objs[0].Index != IINRestartIndex || objs[0].Data[0] != 0 {
		t.Errorf("Unexpected g80 objects %+v", objs)
	}
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		iin2 uint8
	}{
		{"unknown qualifier", []byte{0xC0, 0x01, 0x1E, 0x00, 0x4F}, IIN2ObjectUnknown},
		{"unknown group", []byte{0xC0, 0x01, 0x63, 0x01, 0x06}, IIN2ObjectUnknown},
		{"truncated header", []byte{0xC0, 0x01, 0x1E, 0x00}, IIN2ParameterError},
		{"truncated range", []byte{0xC0, 0x01, 0x1E, 0x00, 0x01, 0x00}, IIN2ParameterError},
		{"reversed range", []byte{0xC0, 0x01, 0x1E, 0x00, 0x00, 0x05, 0x01}, IIN2ParameterError},
		{"truncated CROB", []byte{0xC0, 0x05, 0x0C, 0x01, 0x28, 0x01, 0x00, 0x00, 0x00, 0x03}, IIN2ParameterError},
		{"not first fragment", []byte{0x40, 0x01, 0x3C, 0x01, 0x06}, IIN2ParameterError},
		{"response function", []byte{0xC0, 0x81, 0x00, 0x00}, IIN2NoFuncCodeSupport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseRequest(tt.data)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected *ParseError, got %v", err)
			}
			if pe.IIN2 != tt.iin2 {
				t.Errorf("Expected IIN2 0x%02X, got 0x%02X", tt.iin2, pe.IIN2)
			}
			if msg == nil || msg.APDU == nil {
				t.Error("Message with APDU header should be returned alongside the parse error")
			}
		})
	}
}

func TestParseRequestTooShort(t *testing.T) {
	_, err := ParseRequest([]byte{0xC0})
	if !errors.Is(err, ErrAPDUTooShort) {
		t.Errorf("Expected ErrAPDUTooShort, got %v", err)
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		t.Error("A header too short to answer must not be a ParseError")
	}
}

func TestParseResponseObjects(t *testing.T) {
	values := [][]byte{
		mustStatic(t, types.PointClassAnalog, 1.5),
		mustStatic(t, types.PointClassAnalog, 2.5),
	}
	apdus := Build(ResponseData{
		Sequence: 2,
		Blocks:   []ResponseBlock{NewRangeBlock(GroupAnalogInput, AnalogInputFloat, 0, values)},
	}, 2048)

	msg, err := ParseResponse(apdus[0].Serialize())
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	objs := msg.Blocks[0].Objects
	if len(objs) != 2 || !bytes.Equal(objs[1].Data, values[1]) || objs[1].Index != 1 {
		t.Errorf("Unexpected objects %+v", objs)
	}
}

func mustStatic(t *testing.T, c types.PointClass, v any) []byte {
	t.Helper()
	data, err := EncodeStatic(c, VariationAny, types.FlagOnline, v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
