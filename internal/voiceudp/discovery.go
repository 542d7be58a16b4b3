// Package voiceudp implements the UDP half of a voice session: IP
// discovery and the paced, double-layer-encrypted RTP sender (spec
// §4.5, component C5).
package voiceudp

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"
)

// ipDiscoveryPacketSize is the fixed size of both the request and the
// reply: u16 type, u16 length, u32 ssrc, 64-byte address, u16 port.
const ipDiscoveryPacketSize = 2 + 2 + 4 + 64 + 2

// Discover performs the IP-discovery exchange over an already-connected
// UDP socket: send a 74-byte request carrying ssrc, read the server's
// reply, and return the external (ip, port) it reports (spec §4.5,
// byte-exact with original_source/udp.py's
// struct.pack("!HHI64sH", 1, 70, ssrc, b"", 0)).
func Discover(conn *net.UDPConn, ssrc uint32, timeout time.Duration) (ip string, port uint16, err error) {
	req := make([]byte, ipDiscoveryPacketSize)
	binary.BigEndian.PutUint16(req[0:2], 1)
	binary.BigEndian.PutUint16(req[2:4], 70)
	binary.BigEndian.PutUint32(req[4:8], ssrc)
	// req[8:72] is the zero-padded address field; req[72:74] the port.

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", 0, fmt.Errorf("voiceudp: set deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(req); err != nil {
		return "", 0, fmt.Errorf("voiceudp: send ip discovery request: %w", err)
	}

	resp := make([]byte, ipDiscoveryPacketSize)
	n, err := conn.Read(resp)
	if err != nil {
		return "", 0, fmt.Errorf("voiceudp: read ip discovery reply: %w", err)
	}
	if n < ipDiscoveryPacketSize {
		return "", 0, fmt.Errorf("voiceudp: short ip discovery reply (%d bytes)", n)
	}

	addr := strings.TrimRight(string(resp[8:72]), "\x00")
	port = binary.BigEndian.Uint16(resp[72:74])
	return addr, port, nil
}
