package voiceudp

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

func TestDiscoverRoundTrip(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, ipDiscoveryPacketSize)
		n, from, err := server.ReadFromUDP(buf)
		if err != nil || n != ipDiscoveryPacketSize {
			return
		}
		ssrc := binary.BigEndian.Uint32(buf[4:8])
		if ssrc != 0xcafef00d {
			return
		}
		reply := make([]byte, ipDiscoveryPacketSize)
		binary.BigEndian.PutUint16(reply[0:2], 1)
		binary.BigEndian.PutUint16(reply[2:4], 70)
		binary.BigEndian.PutUint32(reply[4:8], ssrc)
		copy(reply[8:72], "203.0.113.7")
		binary.BigEndian.PutUint16(reply[72:74], 51820)
		server.WriteToUDP(reply, from)
	}()

	client, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ip, port, err := Discover(client, 0xcafef00d, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ip != "203.0.113.7" || port != 51820 {
		t.Fatalf("got ip=%q port=%d", ip, port)
	}
	<-done
}
