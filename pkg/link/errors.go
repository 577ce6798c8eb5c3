package link

import "fmt"

// CrcError reports a CRC mismatch. Block is -1 for the header and the
// zero-based user data block index otherwise.
type CrcError struct {
	Block    int
	Expected uint16
	Received uint16
}

func (e *CrcError) Error() string {
	if e.Block < 0 {
		return fmt.Sprintf("link: header CRC mismatch: expected 0x%04X, received 0x%04X", e.Expected, e.Received)
	}
	return fmt.Sprintf("link: block %d CRC mismatch: expected 0x%04X, received 0x%04X", e.Block, e.Expected, e.Received)
}

func (e *CrcError) Unwrap() error { return ErrInvalidCRC }

// FramingError reports bytes that cannot be a frame
type FramingError struct {
	Err       error
	Discarded int // bytes dropped while hunting for start octets
}

func (e *FramingError) Error() string {
	if e.Discarded > 0 {
		return fmt.Sprintf("link: framing error: %v (%d bytes discarded)", e.Err, e.Discarded)
	}
	return fmt.Sprintf("link: framing error: %v", e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }
