package link

import (
	"bufio"
	"io"
)

// FrameReader extracts frames from a byte stream
// It hunts for the start octets, so it recovers from garbage and from frames
// whose header CRC was bad.
type FrameReader struct {
	r   *bufio.Reader
	buf [MaxFrameSize]byte
}

// NewFrameReader wraps r
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 4*MaxFrameSize)}
}

// ReadFrame blocks until a frame, a protocol error, or an I/O error.
// Protocol errors (*CrcError, *FramingError) leave the reader usable; the
// caller decides whether to continue. The returned raw slice is only valid
// until the next call.
func (fr *FrameReader) ReadFrame() (*Frame, []byte, error) {
	discarded, err := fr.sync()
	if err != nil {
		return nil, nil, err
	}
	if discarded > 0 {
		return nil, nil, &FramingError{Err: ErrInvalidStartBytes, Discarded: discarded}
	}

	header, err := fr.r.Peek(HeaderSize)
	if err != nil {
		return nil, nil, err
	}
	if !VerifyCRC(header) {
		// only the start octets are trusted, so resume the hunt right after them
		_, _, crcErr := Decode(header)
		if _, err := fr.r.Discard(2); err != nil {
			return nil, nil, err
		}
		return nil, nil, crcErr
	}
	copy(fr.buf[:HeaderSize], header)
	if _, err := fr.r.Discard(HeaderSize); err != nil {
		return nil, nil, err
	}
	header = fr.buf[:HeaderSize]
	if header[2] < 5 {
		return nil, nil, &FramingError{Err: ErrInvalidLength}
	}

	size := encodedSize(int(header[2]) - 5)
	if _, err := io.ReadFull(fr.r, fr.buf[HeaderSize:size]); err != nil {
		return nil, nil, err
	}

	raw := fr.buf[:size]
	frame, _, err := Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	return frame, raw, nil
}

// sync consumes bytes until the next two bytes are the start octets
func (fr *FrameReader) sync() (int, error) {
	discarded := 0
	for {
		peek, err := fr.r.Peek(2)
		if err != nil {
			return discarded, err
		}
		if peek[0] == StartByte1 && peek[1] == StartByte2 {
			return discarded, nil
		}
		if _, err := fr.r.Discard(1); err != nil {
			return discarded, err
		}
		discarded++
	}
}
