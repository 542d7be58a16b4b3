package voiceudp

import (
	"encoding/binary"
	"errors"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/rodrigo-weigert/meu-chapeu/internal/aead"
	"github.com/rodrigo-weigert/meu-chapeu/internal/gatewayproto"
	"github.com/rodrigo-weigert/meu-chapeu/internal/metrics"
)

// frameInterval is the fixed RTP pacing tick (spec §4.5: "20 ms").
const frameInterval = 20 * time.Millisecond

// StopFlag is the cross-thread signal the player loop (C8) uses to skip
// the remainder of an item without closing the UDP socket (spec §5).
type StopFlag struct {
	stopped atomic.Bool
}

// Stop requests the sender abandon any remaining frames of the current
// item after the in-flight packet.
func (s *StopFlag) Stop() { s.stopped.Store(true) }

// Stopped reports whether Stop has been called.
func (s *StopFlag) Stopped() bool { return s.stopped.Load() }

// MediaKeySource supplies the current E2EE media key for one packet.
// active is false when DAVE is not (yet, or no longer) protecting
// media, in which case the outer transport AEAD is the sole layer
// (spec §3 invariant).
type MediaKeySource func() (key []byte, nonce uint32, active bool, err error)

// Sender streams RTP packets for one voice connection. One Sender is
// shared across the lifetime of a VoiceSession; StreamItem is called
// once per queued media item (spec §4.7).
type Sender struct {
	conn         *net.UDPConn
	mode         aead.TransportMode
	transportKey []byte
	ssrc         uint32
}

// New constructs a Sender bound to an already-connected UDP socket,
// using the transport mode and key negotiated during SESSION_DESCRIPTION.
func New(conn *net.UDPConn, mode aead.TransportMode, transportKey []byte, ssrc uint32) *Sender {
	return &Sender{conn: conn, mode: mode, transportKey: transportKey, ssrc: ssrc}
}

// StreamItem paces out the Opus frames from frames (sealed under the
// outer AEAD, and the inner DAVE layer when keySource reports active)
// until the channel closes or stop is observed, then appends
// SilenceFrameCount silence frames to flush the peer's jitter buffer.
// It returns the running seq/timestamp/nonce counters advanced by
// exactly the number of packets actually transmitted, so the caller
// can persist audio_seq/rtp_nonce (spec §4.7 step 5).
func (s *Sender) StreamItem(frames <-chan []byte, stop *StopFlag, startSeq uint16, startTimestamp, startNonce uint32, keySource MediaKeySource) (endSeq uint16, endTimestamp, endNonce uint32, err error) {
	seq, timestamp, nonce := startSeq, startTimestamp, startNonce
	nextSend := time.Now().Add(frameInterval)

	send := func(payload []byte) error {
		inner := payload
		if keySource != nil {
			key, keyNonce, active, kerr := keySource()
			if kerr != nil {
				return kerr
			}
			if active {
				inner, kerr = buildInnerPayload(payload, key, keyNonce)
				if kerr != nil {
					return kerr
				}
			}
		}

		header := gatewayproto.PackRTPHeader(seq, timestamp, s.ssrc)
		ciphertext, serr := aead.Seal(s.mode, s.transportKey, nonce, header, inner)
		if serr != nil {
			return serr
		}

		packet := make([]byte, 0, len(header)+len(ciphertext)+4)
		packet = append(packet, header...)
		packet = append(packet, ciphertext...)
		trailer := make([]byte, 4)
		binary.LittleEndian.PutUint32(trailer, nonce)
		packet = append(packet, trailer...)

		now := time.Now()
		if now.Before(nextSend) {
			time.Sleep(nextSend.Sub(now))
		} else if drift := now.Sub(nextSend); drift > frameInterval {
			log.Printf("[voiceudp] pacing drift %s exceeds one packet interval, realigning", drift)
			nextSend = now
		}

		if _, werr := s.conn.Write(packet); werr != nil {
			return werr
		}
		nextSend = nextSend.Add(frameInterval)
		metrics.PacketsSent.Inc()

		seq++
		timestamp += gatewayproto.OpusSamplesPerFrame
		nonce++
		return nil
	}

loop:
	for {
		if stop.Stopped() {
			break loop
		}
		select {
		case frame, ok := <-frames:
			if !ok {
				break loop
			}
			if serr := send(frame); serr != nil {
				if isClosedConn(serr) {
					return seq, timestamp, nonce, nil
				}
				return seq, timestamp, nonce, serr
			}
		}
	}

	for i := 0; i < gatewayproto.SilenceFrameCount; i++ {
		if serr := send(gatewayproto.SilenceFrame); serr != nil {
			if isClosedConn(serr) {
				return seq, timestamp, nonce, nil
			}
			return seq, timestamp, nonce, serr
		}
	}
	return seq, timestamp, nonce, nil
}

// buildInnerPayload seals opusFrame under the E2EE media key, appending
// the nonce/size/marker trailer the reference peer expects (spec §4.5).
func buildInnerPayload(opusFrame, key []byte, nonce uint32) ([]byte, error) {
	ciphertextAndTag, err := aead.EncryptInner(key, nonce, opusFrame)
	if err != nil {
		return nil, err
	}
	nonceBytes := gatewayproto.EncodeULEB128(uint64(nonce))
	supplementalSize := 8 + len(nonceBytes) + 3

	out := make([]byte, 0, len(ciphertextAndTag)+len(nonceBytes)+3)
	out = append(out, ciphertextAndTag...)
	out = append(out, nonceBytes...)
	out = append(out, byte(supplementalSize), 0xFA, 0xFA)
	return out, nil
}

// isClosedConn reports whether err reflects the UDP socket having been
// closed by the owning voicegateway client — the sender must treat
// this as a normal end-of-stream, not an error (spec §5).
func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
