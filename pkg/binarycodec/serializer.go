package binarycodec

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

const (
	maxSingleByteLength = 192
	maxDoubleByteLength = 12480
	maxTripleByteLength = 918744
)

type serializer struct {
	buf []byte
}

func (s *serializer) uint16(f fieldID, v uint16) {
	s.buf = append(s.buf, f.header()...)
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

func (s *serializer) uint32(f fieldID, v uint32) {
	s.buf = append(s.buf, f.header()...)
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) raw(f fieldID, v []byte) {
	s.buf = append(s.buf, f.header()...)
	s.buf = append(s.buf, v...)
}

func (s *serializer) vl(f fieldID, v []byte) {
	s.buf = append(s.buf, f.header()...)
	s.buf = append(s.buf, encodeVLLength(len(v))...)
	s.buf = append(s.buf, v...)
}

// encodeVLLength returns the 1 to 3 byte length prefix of a variable length
// field.
func encodeVLLength(length int) []byte {
	switch {
	case length <= maxSingleByteLength:
		return []byte{byte(length)}
	case length <= maxDoubleByteLength:
		length -= maxSingleByteLength + 1
		return []byte{byte(maxSingleByteLength + 1 + (length >> 8)), byte(length & 0xff)}
	default:
		length -= maxDoubleByteLength + 1
		return []byte{
			byte(241 + (length >> 16)), byte((length >> 8) & 0xff), byte(length & 0xff),
		}
	}
}

func decodeVLLength(buf []byte) (int, int, error) {
	if len(buf) < 1 {
		return 0, 0, ErrUnexpectedEnd
	}
	b1 := int(buf[0])
	switch {
	case b1 <= maxSingleByteLength:
		return b1, 1, nil
	case b1 <= 240:
		if len(buf) < 2 {
			return 0, 0, ErrUnexpectedEnd
		}
		return maxSingleByteLength + 1 + (b1-193)*256 + int(buf[1]), 2, nil
	case b1 <= 254:
		if len(buf) < 3 {
			return 0, 0, ErrUnexpectedEnd
		}
		length := maxDoubleByteLength + 1 + (b1-241)*65536 + int(buf[1])*256 + int(buf[2])
		if length > maxTripleByteLength {
			return 0, 0, ErrInvalidLengthPrefix
		}
		return length, 3, nil
	default:
		return 0, 0, ErrInvalidLengthPrefix
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}
