// Package wire implements the length-framed binary envelope shared by the
// provider and the caller channel.
//
// Frame layout:
//
//	[ header_len : u32 little-endian ][ header_bytes : header_len ][ arg_bytes : arg_size ]
//
// header_len is a raw 4-byte integer. header_bytes is itself a small
// serialised record — ServiceName, MethodName, ArgSize — decoded by
// decodeHeader in header.go. arg_bytes immediately follows and is exactly
// ArgSize octets; it is the caller's serialised request. The provider's
// serialised response does not use this frame: it travels as raw bytes
// terminated by connection close (see completion.Complete in
// provider/connection.go).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxFieldSize caps header_len and ArgSize. It exists purely to reject
// malformed or hostile length prefixes before they drive an allocation;
// it is not a meaningful limit on real request/response sizes.
const MaxFieldSize = 1 << 24

// HeaderLenSize is the width of the leading length prefix.
const HeaderLenSize = 4

var (
	// ErrNeedMore is returned by Decode when buf does not yet contain a
	// complete frame. Decode is stateless: the caller owns buffering and
	// must re-invoke Decode once more bytes have arrived.
	ErrNeedMore = errors.New("wire: need more data")

	// ErrMalformedFrame is returned when header parsing fails or a
	// declared size exceeds MaxFieldSize.
	ErrMalformedFrame = errors.New("wire: malformed frame")
)

// Header is the structured record carried as header_bytes.
type Header struct {
	ServiceName string
	MethodName  string
	ArgSize     uint32
}

// Encode serialises (serviceName, methodName, argBytes) into a complete
// frame. It fails without emitting any bytes if the header or the
// argument payload would exceed MaxFieldSize.
func Encode(serviceName, methodName string, argBytes []byte) ([]byte, error) {
	if len(argBytes) > MaxFieldSize {
		return nil, fmt.Errorf("%w: arg_size %d exceeds cap", ErrMalformedFrame, len(argBytes))
	}

	headerBytes := encodeHeader(Header{
		ServiceName: serviceName,
		MethodName:  methodName,
		ArgSize:     uint32(len(argBytes)),
	})
	if len(headerBytes) > MaxFieldSize {
		return nil, fmt.Errorf("%w: header_len %d exceeds cap", ErrMalformedFrame, len(headerBytes))
	}

	buf := make([]byte, HeaderLenSize+len(headerBytes)+len(argBytes))
	binary.LittleEndian.PutUint32(buf[0:HeaderLenSize], uint32(len(headerBytes)))
	copy(buf[HeaderLenSize:], headerBytes)
	copy(buf[HeaderLenSize+len(headerBytes):], argBytes)
	return buf, nil
}

// Decode parses one frame out of the front of buf. On success it
// returns the header, the argument bytes, and the number of bytes of
// buf consumed. If buf does not yet hold a full frame it returns
// ErrNeedMore and the caller should retry after appending more bytes.
// Decode never mutates or retains buf.
func Decode(buf []byte) (Header, []byte, int, error) {
	if len(buf) < HeaderLenSize {
		return Header{}, nil, 0, ErrNeedMore
	}

	headerLen := binary.LittleEndian.Uint32(buf[0:HeaderLenSize])
	if headerLen > MaxFieldSize {
		return Header{}, nil, 0, fmt.Errorf("%w: header_len %d exceeds cap", ErrMalformedFrame, headerLen)
	}

	need := HeaderLenSize + int(headerLen)
	if len(buf) < need {
		return Header{}, nil, 0, ErrNeedMore
	}

	hdr, err := decodeHeader(buf[HeaderLenSize:need])
	if err != nil {
		return Header{}, nil, 0, err
	}
	if hdr.ArgSize > MaxFieldSize {
		return Header{}, nil, 0, fmt.Errorf("%w: arg_size %d exceeds cap", ErrMalformedFrame, hdr.ArgSize)
	}

	total := need + int(hdr.ArgSize)
	if len(buf) < total {
		return Header{}, nil, 0, ErrNeedMore
	}

	argBytes := make([]byte, hdr.ArgSize)
	copy(argBytes, buf[need:total])
	return hdr, argBytes, total, nil
}
