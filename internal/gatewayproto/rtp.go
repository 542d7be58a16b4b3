package gatewayproto

import "encoding/binary"

// RTPHeaderSize is the fixed 12-byte header this gateway emits: no CSRC
// list, no extensions, no padding (spec §4.5).
const RTPHeaderSize = 12

// rtpVersionPayloadType is the first two fixed bytes of every outbound
// RTP header: version 2, no padding/extension/CSRC, payload type 0x78
// (spec §4.5: `0x80 0x78`).
var rtpVersionPayloadType = [2]byte{0x80, 0x78}

// PackRTPHeader builds the 12-byte big-endian RTP header:
// 0x80 0x78 seq(u16) timestamp(u32) ssrc(u32).
func PackRTPHeader(seq uint16, timestamp, ssrc uint32) []byte {
	hdr := make([]byte, RTPHeaderSize)
	hdr[0], hdr[1] = rtpVersionPayloadType[0], rtpVersionPayloadType[1]
	binary.BigEndian.PutUint16(hdr[2:4], seq)
	binary.BigEndian.PutUint32(hdr[4:8], timestamp)
	binary.BigEndian.PutUint32(hdr[8:12], ssrc)
	return hdr
}

// UnpackRTPHeader parses a 12-byte RTP header back into its fields.
func UnpackRTPHeader(hdr []byte) (seq uint16, timestamp, ssrc uint32, ok bool) {
	if len(hdr) < RTPHeaderSize {
		return 0, 0, 0, false
	}
	seq = binary.BigEndian.Uint16(hdr[2:4])
	timestamp = binary.BigEndian.Uint32(hdr[4:8])
	ssrc = binary.BigEndian.Uint32(hdr[8:12])
	return seq, timestamp, ssrc, true
}

// OpusSamplesPerFrame is the RTP timestamp advance per 20 ms frame at
// 48 kHz (spec §3 invariant: "RTP timestamp advances by exactly 960").
const OpusSamplesPerFrame = 960

// SilenceFrame is one of the five Opus comfort-noise frames appended
// after the last frame of an item to flush the peer's jitter buffer
// (spec §4.5).
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}

// SilenceFrameCount is how many SilenceFrame packets are sent after an
// item's last real frame.
const SilenceFrameCount = 5
