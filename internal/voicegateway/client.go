// Package voicegateway implements the per-call voice WebSocket state
// machine (spec §4.2, component C6): HELLO/IDENTIFY/READY/
// SELECT_PROTOCOL/SESSION_DESCRIPTION, the optional DAVE sub-protocol,
// and streaming readiness.
package voicegateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/rodrigo-weigert/meu-chapeu/internal/aead"
	"github.com/rodrigo-weigert/meu-chapeu/internal/dave"
	"github.com/rodrigo-weigert/meu-chapeu/internal/gatewayproto"
	"github.com/rodrigo-weigert/meu-chapeu/internal/voiceudp"
)

// Config identifies the voice connection this Client drives (spec §4.1
// voice-join sub-protocol hands these in after the VOICE_STATE_UPDATE /
// VOICE_SERVER_UPDATE futures resolve).
type Config struct {
	Token     string
	GuildID   string // server_id
	UserID    string
	SessionID string
	Endpoint  string // host only, no scheme/query (e.g. "xyz.discord.media")

	// LocalUDPAddr is the implementation-chosen local bind address for
	// the UDP socket (spec §4.2: "e.g., 2917"); empty lets the OS pick.
	LocalUDPAddr string

	// DaveFactory, when non-nil, enables the DAVE E2EE sub-protocol by
	// constructing a fresh MLS session on demand (spec §1 scope
	// boundary: the MLS library itself is opaque).
	DaveFactory dave.Factory
}

// CloseCallback is invoked once, when the voice connection closes with a
// permanent or non-reconnectable code, with the reason code observed
// (spec §4.1 step 4: used by the caller to send the leave
// VOICE_STATE_UPDATE). It is not invoked when Stop or ctx cancellation
// ends Run.
type CloseCallback func(code int)

// Client drives one voice connection end to end. Incoming frames are
// processed serially off a single read loop; the write path is
// serialized by writeMu so heartbeats and handler-triggered sends never
// interleave on the wire (spec §5: "single writer per WS").
type Client struct {
	cfg      Config
	onClose  CloseCallback
	daveMgr  *dave.Manager

	conn     *websocket.Conn
	writeMu  sync.Mutex

	udpConn  *net.UDPConn
	sender   *voiceudp.Sender
	ssrc     uint32
	transportMode aead.TransportMode
	secretKey     []byte

	audioSeq  uint16
	rtpTS     uint32
	rtpNonce  uint32

	heartbeatAck uint16 // last seen sequence number, sent as seq_ack in heartbeats and RESUME

	sessionReadyOnce sync.Once
	sessionReadyCh   chan struct{}
	daveReadyOnce    sync.Once
	daveReadyCh      chan struct{}

	externalSenderOnce sync.Once
	externalSenderCh   chan struct{}

	resumeEndpoint string

	cancel context.CancelFunc
}

// New constructs a Client for cfg. If cfg.DaveFactory is nil, dave_ready
// is satisfied as soon as SESSION_DESCRIPTION arrives (spec §4.2).
func New(cfg Config, onClose CloseCallback) *Client {
	c := &Client{
		cfg:              cfg,
		onClose:          onClose,
		sessionReadyCh:   make(chan struct{}),
		daveReadyCh:      make(chan struct{}),
		externalSenderCh: make(chan struct{}),
	}
	if cfg.DaveFactory != nil {
		c.daveMgr = dave.NewManager(cfg.UserID, cfg.DaveFactory)
	}
	// audio_seq starts at a random 32-bit seed, used modulo 2^16 (spec §3).
	c.audioSeq = uint16(rand.Uint32())
	return c
}

// Ready blocks until both session_ready and dave_ready have fired, or
// ctx is cancelled (spec §4.2: "playback readiness is session_ready ∧
// dave_ready").
func (c *Client) Ready(ctx context.Context) error {
	select {
	case <-c.sessionReadyCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.daveReadyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sender returns the UDP sender once streaming has become possible.
// Callers must only use it after Ready returns.
func (c *Client) Sender() *voiceudp.Sender { return c.sender }

// Counters returns the current audio_seq/rtp_timestamp/rtp_nonce, for
// the player loop to persist after streaming an item (spec §4.7 step 5).
func (c *Client) Counters() (seq uint16, timestamp, nonce uint32) {
	return c.audioSeq, c.rtpTS, c.rtpNonce
}

// AdvanceCounters records the counters StreamItem returned.
func (c *Client) AdvanceCounters(seq uint16, timestamp, nonce uint32) {
	c.audioSeq, c.rtpTS, c.rtpNonce = seq, timestamp, nonce
}

// Run dials the voice gateway and processes it until ctx is cancelled or
// the connection closes permanently. It reconnects and RESUMEs on
// {1001, 1006, 4015} and on missing close codes, and stops on {4014,
// 4022} or any other close (spec §4.2).
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	c.resumeEndpoint = c.cfg.Endpoint
	resuming := false

	for {
		code, err := c.connectAndPump(ctx, resuming)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if code != 0 && gatewayproto.VoicePermanentClose(code) {
			log.Printf("[voicegateway] permanent close code=%d, stopping", code)
			if c.onClose != nil {
				c.onClose(code)
			}
			return err
		}
		if code == 0 || gatewayproto.VoiceReconnectable(code) {
			log.Printf("[voicegateway] reconnectable close code=%d, resuming", code)
			resuming = true
			continue
		}
		log.Printf("[voicegateway] closing with code=%d err=%v", code, err)
		if c.onClose != nil {
			c.onClose(code)
		}
		return err
	}
}

// Stop cancels Run and closes the UDP socket (the sender must tolerate
// this as end-of-stream, not an error — spec §5).
func (c *Client) Stop() {
	if c.udpConn != nil {
		_ = c.udpConn.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
}

// connectAndPump dials, runs HELLO/IDENTIFY or RESUME, and reads until
// the socket closes. It returns the observed close code (0 if none was
// reported) and the terminal error.
func (c *Client) connectAndPump(ctx context.Context, resuming bool) (closeCode int, err error) {
	url := fmt.Sprintf("wss://%s?v=8", c.resumeEndpoint)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	log.Printf("[voicegateway] connecting to %s resume=%v", url, resuming)
	conn, _, derr := websocket.Dial(dialCtx, url, &websocket.DialOptions{HTTPHeader: http.Header{}})
	if derr != nil {
		return 0, fmt.Errorf("voicegateway: dial: %w", derr)
	}
	c.conn = conn
	defer func() {
		_ = c.conn.CloseNow()
		c.conn = nil
	}()

	heartbeatDone := make(chan struct{})
	close(heartbeatDone) // replaced with a fresh channel once HELLO actually starts the loop
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer func() { stopHeartbeat(); <-heartbeatDone }()

	identified := false

	for {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		mt, data, rerr := c.conn.Read(ctx)
		if rerr != nil {
			code := int(websocket.CloseStatus(rerr))
			if code < 0 {
				code = 0
			}
			return code, rerr
		}

		if mt == websocket.MessageBinary {
			if seq, ok := gatewayproto.PeekBinarySequence(data); ok {
				c.heartbeatAck = seq
			}
			if err := c.handleDaveBinary(ctx, data); err != nil {
				log.Printf("[voicegateway] dave handling error: %v", err)
			}
			continue
		}

		evt, perr := gatewayproto.DecodeVoiceEvent(data)
		if perr != nil {
			log.Printf("[voicegateway] malformed frame, closing: %v", perr)
			_ = c.conn.Close(websocket.StatusUnsupportedData, "malformed frame")
			return 0, perr
		}
		if evt.SequenceNumber != 0 {
			c.heartbeatAck = evt.SequenceNumber
		}

		switch evt.Opcode {
		case gatewayproto.VoiceOpHello:
			var hello struct {
				HeartbeatIntervalMs float64 `json:"heartbeat_interval_ms"`
			}
			if err := json.Unmarshal(evt.Data, &hello); err != nil {
				return 0, fmt.Errorf("voicegateway: parse HELLO: %w", err)
			}
			interval := time.Duration(hello.HeartbeatIntervalMs) * time.Millisecond

			if !identified {
				if resuming {
					if err := c.sendResume(ctx); err != nil {
						return 0, err
					}
				} else {
					if err := c.sendIdentify(ctx); err != nil {
						return 0, err
					}
				}
				identified = true
			}
			heartbeatDone = make(chan struct{})
			go c.heartbeatLoop(heartbeatCtx, interval, heartbeatDone)

		case gatewayproto.VoiceOpReady:
			if err := c.handleReady(ctx, evt.Data); err != nil {
				return 0, err
			}

		case gatewayproto.VoiceOpSessionDescription:
			if err := c.handleSessionDescription(ctx, evt.Data); err != nil {
				return 0, err
			}

		case gatewayproto.VoiceOpHeartbeatAck:
			// no-op; zombie-connection detection is a future extension.

		case gatewayproto.VoiceOpResumed:
			log.Printf("[voicegateway] resumed")

		case gatewayproto.VoiceOpClientsConnect, gatewayproto.VoiceOpClientsDisconnect:
			// informational only

		default:
			log.Printf("[voicegateway] unhandled text opcode %d, ignoring", evt.Opcode)
		}
	}
}

func (c *Client) writeJSON(ctx context.Context, op gatewayproto.VoiceOpcode, data any) error {
	payload, err := gatewayproto.EncodeVoiceEnvelope(op, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, payload)
}

func (c *Client) writeBinary(ctx context.Context, op gatewayproto.VoiceOpcode, body []byte) error {
	frame := gatewayproto.EncodeOutgoingBinary(op, body)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageBinary, frame)
}

func (c *Client) sendIdentify(ctx context.Context) error {
	return c.writeJSON(ctx, gatewayproto.VoiceOpIdentify, map[string]any{
		"token":                     c.cfg.Token,
		"server_id":                 c.cfg.GuildID,
		"user_id":                   c.cfg.UserID,
		"session_id":                c.cfg.SessionID,
		"max_dave_protocol_version": 1,
	})
}

func (c *Client) sendResume(ctx context.Context) error {
	return c.writeJSON(ctx, gatewayproto.VoiceOpResume, map[string]any{
		"server_id":  c.cfg.GuildID,
		"session_id": c.cfg.SessionID,
		"token":      c.cfg.Token,
		"seq_ack":    c.heartbeatAck,
	})
}

// heartbeatNonce starts monotonically increasing in [1e12, 2e12) (spec
// §4.2) and is only ever read/written from heartbeatLoop's own goroutine.
func heartbeatNonce() int64 {
	return int64(1e12) + rand.Int63n(int64(1e12))
}

func (c *Client) heartbeatLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	jitter := time.Duration(rand.Float64() * float64(interval))
	t := time.NewTimer(jitter)
	defer t.Stop()
	nonce := heartbeatNonce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := c.writeJSON(ctx, gatewayproto.VoiceOpHeartbeat, map[string]any{
				"seq_ack": c.heartbeatAck,
				"t":       nonce,
			})
			nonce++
			if err != nil {
				return
			}
			t.Reset(interval)
		}
	}
}

func (c *Client) handleReady(ctx context.Context, data []byte) error {
	var ready struct {
		IP    string   `json:"ip"`
		Port  int      `json:"port"`
		SSRC  uint32   `json:"ssrc"`
		Modes []string `json:"modes"`
	}
	if err := json.Unmarshal(data, &ready); err != nil {
		return fmt.Errorf("voicegateway: parse READY: %w", err)
	}
	c.ssrc = ready.SSRC

	mode, ok := aead.PreferredMode(ready.Modes)
	if !ok {
		return fmt.Errorf("voicegateway: server offered no supported transport mode: %v", ready.Modes)
	}
	c.transportMode = mode

	var localAddr *net.UDPAddr
	if c.cfg.LocalUDPAddr != "" {
		var err error
		localAddr, err = net.ResolveUDPAddr("udp", c.cfg.LocalUDPAddr)
		if err != nil {
			return fmt.Errorf("voicegateway: resolve local udp addr: %w", err)
		}
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", ready.IP, ready.Port))
	if err != nil {
		return fmt.Errorf("voicegateway: resolve remote udp addr: %w", err)
	}
	udpConn, err := net.DialUDP("udp", localAddr, remoteAddr)
	if err != nil {
		return fmt.Errorf("voicegateway: dial udp: %w", err)
	}
	c.udpConn = udpConn

	externalIP, externalPort, err := voiceudp.Discover(udpConn, c.ssrc, 5*time.Second)
	if err != nil {
		return fmt.Errorf("voicegateway: ip discovery: %w", err)
	}

	return c.writeJSON(ctx, gatewayproto.VoiceOpSelectProtocol, map[string]any{
		"protocol": "udp",
		"data": map[string]any{
			"address": externalIP,
			"port":    externalPort,
			"mode":    string(mode),
		},
	})
}

func (c *Client) handleSessionDescription(ctx context.Context, data []byte) error {
	var desc struct {
		SecretKey          []byte `json:"secret_key"`
		DaveProtocolVersion int    `json:"dave_protocol_version"`
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return fmt.Errorf("voicegateway: parse SESSION_DESCRIPTION: %w", err)
	}
	c.secretKey = desc.SecretKey
	c.sender = voiceudp.New(c.udpConn, c.transportMode, c.secretKey, c.ssrc)

	if err := c.writeJSON(ctx, gatewayproto.VoiceOpSpeaking, map[string]any{
		"ssrc":     c.ssrc,
		"speaking": 1,
		"delay":    0,
	}); err != nil {
		return err
	}

	if desc.DaveProtocolVersion > 0 && c.daveMgr != nil {
		if err := c.writeBinary(ctx, gatewayproto.VoiceOpDaveMLSKeyPackage, c.daveMgr.KeyPackageMessage()); err != nil {
			return err
		}
	} else {
		c.setDaveReady()
	}
	c.setSessionReady()
	return nil
}

func (c *Client) setSessionReady() {
	c.sessionReadyOnce.Do(func() { close(c.sessionReadyCh) })
}

func (c *Client) setDaveReady() {
	c.daveReadyOnce.Do(func() { close(c.daveReadyCh) })
}

// MediaKeySource adapts the DAVE manager into a voiceudp.MediaKeySource:
// active is false (outer AEAD only) until a ratchet is installed.
func (c *Client) MediaKeySource() voiceudp.MediaKeySource {
	if c.daveMgr == nil {
		return func() ([]byte, uint32, bool, error) { return nil, 0, false, nil }
	}
	return func() ([]byte, uint32, bool, error) {
		mk, ok, err := c.daveMgr.GetCurrentMediaKey()
		if err != nil || !ok {
			return nil, 0, false, err
		}
		return mk.Key, mk.Nonce, true, nil
	}
}
