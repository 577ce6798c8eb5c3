package link

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func mustEncode(t *testing.T, f *Frame) []byte {
	t.Helper()
	b, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return b
}

// TestFrameReader_Stream reads several frames from one stream
func TestFrameReader_Stream(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(mustEncode(t, NewFrame(DirectionMasterToOutstation, PrimaryFrame, FuncResetLink, 1, 2, nil)))
	stream.Write(mustEncode(t, NewFrame(DirectionMasterToOutstation, PrimaryFrame, FuncUserDataUnconfirmed, 1, 2, make([]byte, 40))))

	fr := NewFrameReader(&stream)

	frame, raw, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if frame.FunctionCode != FuncResetLink || len(raw) != HeaderSize {
		t.Errorf("Expected reset link of %d bytes, got %s (%d bytes)", HeaderSize, frame, len(raw))
	}

	frame, _, err = fr.ReadFrame()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if len(frame.UserData) != 40 {
		t.Errorf("Expected 40 bytes of user data, got %d", len(frame.UserData))
	}

	if _, _, err := fr.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

// TestFrameReader_Resync skips garbage and a frame with a bad header CRC
func TestFrameReader_Resync(t *testing.T) {
	good := mustEncode(t, NewFrame(DirectionMasterToOutstation, PrimaryFrame, FuncTestLinkStates, 1, 2, nil))
	bad := append([]byte(nil), good...)
	bad[4] ^= 0xFF

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x05, 0x11})
	stream.Write(bad)
	stream.Write(good)

	fr := NewFrameReader(&stream)

	_, _, err := fr.ReadFrame()
	var framing *FramingError
	if !errors.As(err, &framing) || framing.Discarded != 3 {
		t.Fatalf("Expected framing error with 3 discarded bytes, got %v", err)
	}

	_, _, err = fr.ReadFrame()
	var crcErr *CrcError
	if !errors.As(err, &crcErr) || crcErr.Block != -1 {
		t.Fatalf("Expected header CRC error, got %v", err)
	}

	// the rest of the corrupt header is garbage now
	_, _, err = fr.ReadFrame()
	if !errors.As(err, &framing) {
		t.Fatalf("Expected framing error, got %v", err)
	}

	frame, _, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("Expected the good frame, got %v", err)
	}
	if frame.FunctionCode != FuncTestLinkStates {
		t.Errorf("Expected test link, got %s", frame)
	}
}

// TestFrameReader_BodyCRC reports a damaged user data block
func TestFrameReader_BodyCRC(t *testing.T) {
	encoded := mustEncode(t, NewUserDataFrame(1, 2, make([]byte, 20)))
	encoded[HeaderSize+1] ^= 0x01

	_, _, err := NewFrameReader(bytes.NewReader(encoded)).ReadFrame()
	var crcErr *CrcError
	if !errors.As(err, &crcErr) || crcErr.Block != 0 {
		t.Errorf("Expected block 0 CRC error, got %v", err)
	}
}
