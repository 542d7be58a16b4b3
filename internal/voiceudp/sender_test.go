package voiceudp

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/rodrigo-weigert/meu-chapeu/internal/aead"
	"github.com/rodrigo-weigert/meu-chapeu/internal/gatewayproto"
)

func loopbackPair(t *testing.T) (server, client *net.UDPConn) {
	t.Helper()
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	client, err = net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	return server, client
}

func TestStreamItemOuterOnlyAppendsSilence(t *testing.T) {
	server, client := loopbackPair(t)
	defer server.Close()
	defer client.Close()

	key := bytes.Repeat([]byte{0x11}, 32)
	sender := New(client, aead.ModeAES256GCMRTPSize, key, 0x1234)

	frames := make(chan []byte, 2)
	frames <- []byte{0x01, 0x02}
	frames <- []byte{0x03, 0x04}
	close(frames)

	stop := &StopFlag{}
	start := time.Now()
	endSeq, endTS, endNonce, err := sender.StreamItem(frames, stop, 0, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	wantPackets := uint16(2 + gatewayproto.SilenceFrameCount)
	if endSeq != wantPackets {
		t.Fatalf("endSeq=%d, want %d", endSeq, wantPackets)
	}
	if endTS != uint32(wantPackets)*gatewayproto.OpusSamplesPerFrame {
		t.Fatalf("endTS=%d", endTS)
	}
	if endNonce != uint32(wantPackets) {
		t.Fatalf("endNonce=%d", endNonce)
	}
	if elapsed := time.Since(start); elapsed < 6*frameInterval {
		t.Fatalf("streamed too fast: %s for %d packets", elapsed, wantPackets)
	}

	server.SetReadDeadline(time.Now().Add(time.Second))
	for i := uint16(0); i < wantPackets; i++ {
		buf := make([]byte, 1500)
		n, rerr := server.Read(buf)
		if rerr != nil {
			t.Fatalf("packet %d: %v", i, rerr)
		}
		seq, _, ssrc, ok := gatewayproto.UnpackRTPHeader(buf[:n])
		if !ok || seq != i || ssrc != 0x1234 {
			t.Fatalf("packet %d: seq=%d ssrc=%x ok=%v", i, seq, ssrc, ok)
		}
	}
}

func TestStreamItemStopSkipsRemainingFrames(t *testing.T) {
	server, client := loopbackPair(t)
	defer server.Close()
	defer client.Close()

	key := bytes.Repeat([]byte{0x22}, 32)
	sender := New(client, aead.ModeAES256GCMRTPSize, key, 0xabcd)

	frames := make(chan []byte, 10)
	for i := 0; i < 10; i++ {
		frames <- []byte{byte(i)}
	}

	stop := &StopFlag{}
	go func() {
		time.Sleep(frameInterval + frameInterval/2)
		stop.Stop()
	}()

	endSeq, _, _, err := sender.StreamItem(frames, stop, 0, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if endSeq >= 10+gatewayproto.SilenceFrameCount {
		t.Fatalf("expected early stop, sent %d packets", endSeq)
	}
	if endSeq < gatewayproto.SilenceFrameCount {
		t.Fatalf("expected the silence flush even after stop, got %d packets", endSeq)
	}
}

func TestStreamItemToleratesClosedSocket(t *testing.T) {
	server, client := loopbackPair(t)
	server.Close()

	key := bytes.Repeat([]byte{0x33}, 32)
	sender := New(client, aead.ModeAES256GCMRTPSize, key, 1)

	frames := make(chan []byte, 1)
	frames <- []byte{0x01}
	close(frames)

	client.Close()
	stop := &StopFlag{}
	if _, _, _, err := sender.StreamItem(frames, stop, 0, 0, 0, nil); err != nil {
		t.Fatalf("expected closed socket to be treated as end-of-stream, got %v", err)
	}
}
