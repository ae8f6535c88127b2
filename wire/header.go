package wire

import (
	"encoding/binary"
	"fmt"
)

// encodeHeader and decodeHeader implement the "structured record" the
// spec requires header_bytes to be, laid out the same way the teacher's
// codec.BinaryCodec lays out RPCMessage: a 2-byte length prefix ahead
// of each string field, with the fixed-width ArgSize last.
//
//	┌─────────────────┬──────────────┬──────────────────┬───────────────┬───────────┐
//	│ ServiceNameLen(2)│ ServiceName  │ MethodNameLen(2)  │ MethodName    │ ArgSize(4)│
//	└─────────────────┴──────────────┴──────────────────┴───────────────┴───────────┘
func encodeHeader(h Header) []byte {
	total := 2 + len(h.ServiceName) + 2 + len(h.MethodName) + 4
	buf := make([]byte, total)

	offset := 0
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(h.ServiceName)))
	offset += 2
	copy(buf[offset:], h.ServiceName)
	offset += len(h.ServiceName)

	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(h.MethodName)))
	offset += 2
	copy(buf[offset:], h.MethodName)
	offset += len(h.MethodName)

	binary.BigEndian.PutUint32(buf[offset:offset+4], h.ArgSize)
	return buf
}

func decodeHeader(b []byte) (Header, error) {
	offset := 0

	svcLen, ok := readUint16(b, offset)
	if !ok {
		return Header{}, fmt.Errorf("%w: truncated service name length", ErrMalformedFrame)
	}
	offset += 2
	svcName, ok := readString(b, offset, int(svcLen))
	if !ok {
		return Header{}, fmt.Errorf("%w: truncated service name", ErrMalformedFrame)
	}
	offset += int(svcLen)

	methLen, ok := readUint16(b, offset)
	if !ok {
		return Header{}, fmt.Errorf("%w: truncated method name length", ErrMalformedFrame)
	}
	offset += 2
	methName, ok := readString(b, offset, int(methLen))
	if !ok {
		return Header{}, fmt.Errorf("%w: truncated method name", ErrMalformedFrame)
	}
	offset += int(methLen)

	argSize, ok := readUint32(b, offset)
	if !ok {
		return Header{}, fmt.Errorf("%w: truncated arg size", ErrMalformedFrame)
	}

	return Header{ServiceName: svcName, MethodName: methName, ArgSize: argSize}, nil
}

func readUint16(b []byte, offset int) (uint16, bool) {
	if offset+2 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[offset : offset+2]), true
}

func readUint32(b []byte, offset int) (uint32, bool) {
	if offset+4 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[offset : offset+4]), true
}

func readString(b []byte, offset, length int) (string, bool) {
	if offset+length > len(b) {
		return "", false
	}
	return string(b[offset : offset+length]), true
}
