package gatewayproto

import (
	"encoding/binary"
	"errors"
)

// ErrVectorTooLarge is returned when a length exceeds the 2^30-1 bound
// the Vector length-header format can represent (spec §6).
var ErrVectorTooLarge = errors.New("gatewayproto: vector length exceeds 2^30-1")

// ErrVectorReserved is returned when a length-header's top two bits are
// the reserved `11` pattern.
var ErrVectorReserved = errors.New("gatewayproto: reserved vector length prefix")

// ErrVectorTruncated is returned when a buffer ends before a length
// header (or the data it describes) is fully present.
var ErrVectorTruncated = errors.New("gatewayproto: truncated vector")

const maxVectorLength = 1<<30 - 1

// EncodeVectorLength encodes a length using the narrowest representation
// the Vector length-header format allows (spec §6): 1 byte for values
// below 2^6, 2 bytes below 2^14, otherwise 4 bytes up to 2^30-1.
func EncodeVectorLength(length uint32) ([]byte, error) {
	switch {
	case length > maxVectorLength:
		return nil, ErrVectorTooLarge
	case length < 1<<6:
		return []byte{byte(length)}, nil
	case length < 1<<14:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(length)|0x4000)
		return buf, nil
	default:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, length|0x80000000)
		return buf, nil
	}
}

// DecodeVectorLength parses a length-header at the start of buf,
// returning the decoded length and the number of header bytes consumed.
func DecodeVectorLength(buf []byte) (length uint32, consumed int, err error) {
	if len(buf) < 1 {
		return 0, 0, ErrVectorTruncated
	}
	switch buf[0] >> 6 {
	case 0b00:
		return uint32(buf[0] & 0x3f), 1, nil
	case 0b01:
		if len(buf) < 2 {
			return 0, 0, ErrVectorTruncated
		}
		v := binary.BigEndian.Uint16(buf[:2]) & 0x3fff
		return uint32(v), 2, nil
	case 0b10:
		if len(buf) < 4 {
			return 0, 0, ErrVectorTruncated
		}
		v := binary.BigEndian.Uint32(buf[:4]) &^ 0xc0000000
		return v, 4, nil
	default:
		return 0, 0, ErrVectorReserved
	}
}

// EncodeVector encodes data as a Vector: length-header || data.
func EncodeVector(data []byte) ([]byte, error) {
	hdr, err := EncodeVectorLength(uint32(len(data)))
	if err != nil {
		return nil, err
	}
	return append(hdr, data...), nil
}

// DecodeVector reads a Vector from the start of buf, returning its data
// and the total number of bytes consumed (header + data).
func DecodeVector(buf []byte) (data []byte, consumed int, err error) {
	length, hdrLen, err := DecodeVectorLength(buf)
	if err != nil {
		return nil, 0, err
	}
	total := hdrLen + int(length)
	if len(buf) < total {
		return nil, 0, ErrVectorTruncated
	}
	return buf[hdrLen:total], total, nil
}
