package link

import "encoding/binary"

// crcPoly is 0x3D65 bit-reversed; the register starts at zero and the
// result is inverted
const crcPoly uint16 = 0xA6BC

var crcTable = makeCRCTable()

func makeCRCTable() (table [256]uint16) {
	for i := range table {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			lsb := crc & 1
			crc >>= 1
			if lsb == 1 {
				crc ^= crcPoly
			}
		}
		table[i] = crc
	}
	return table
}

// CalculateCRC returns the DNP3 CRC-16 of data
func CalculateCRC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc >> 8) ^ crcTable[byte(crc)^b]
	}
	return ^crc
}

// VerifyCRC reports whether the last two bytes of data are the little
// endian CRC of the bytes before them
func VerifyCRC(data []byte) bool {
	n := len(data) - 2
	if n < 0 {
		return false
	}
	return binary.LittleEndian.Uint16(data[n:]) == CalculateCRC(data[:n])
}

// AppendCRC returns a copy of data followed by its CRC
func AppendCRC(data []byte) []byte {
	out := make([]byte, len(data), len(data)+2)
	copy(out, data)
	return binary.LittleEndian.AppendUint16(out, CalculateCRC(data))
}

// AddCRCs splits user data into 16-byte blocks, each followed by its CRC
func AddCRCs(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	out := make([]byte, 0, encodedSize(len(data))-HeaderSize)
	for len(data) > 0 {
		n := min(BlockSize, len(data))
		out = append(out, data[:n]...)
		out = binary.LittleEndian.AppendUint16(out, CalculateCRC(data[:n]))
		data = data[n:]
	}
	return out
}

// RemoveCRCs removes and verifies CRC bytes from data
// Expects a 2-byte CRC after every 16 bytes and after the final short block.
// A mismatch is reported as a *CrcError naming the block.
func RemoveCRCs(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	result := make([]byte, 0, len(data))
	block := 0
	for pos := 0; pos < len(data); block++ {
		blockSize := BlockSize
		if pos+blockSize+2 > len(data) {
			blockSize = len(data) - pos - 2
			if blockSize <= 0 {
				return nil, &FramingError{Err: ErrInvalidLength}
			}
		}

		chunk := data[pos : pos+blockSize]
		received := binary.LittleEndian.Uint16(data[pos+blockSize:])
		if calculated := CalculateCRC(chunk); received != calculated {
			return nil, &CrcError{Block: block, Expected: calculated, Received: received}
		}

		result = append(result, chunk...)
		pos += blockSize + 2
	}

	return result, nil
}

// encodedSize returns the on-wire size of a frame carrying dataLen user bytes
func encodedSize(dataLen int) int {
	return HeaderSize + dataLen + 2*((dataLen+BlockSize-1)/BlockSize)
}
