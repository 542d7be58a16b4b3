// Package gateway implements the primary gateway WebSocket state
// machine (spec §4.1, component C7): heartbeats, resume / invalid
// session recovery, interaction dispatch, and voice-join orchestration.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/rodrigo-weigert/meu-chapeu/internal/dave"
	"github.com/rodrigo-weigert/meu-chapeu/internal/gatewayproto"
	"github.com/rodrigo-weigert/meu-chapeu/internal/metrics"
	"github.com/rodrigo-weigert/meu-chapeu/internal/restclient"
)

// reconnectBackoff / invalidSessionBackoff are the fixed waits spec §5
// mandates ("reconnect retries wait 30s... invalid-session recovery
// waits 60s").
const (
	reconnectBackoff      = 30 * time.Second
	invalidSessionBackoff = 60 * time.Second
)

// Config is everything the Client needs to identify itself and reach
// its collaborators. The REST façade and media resolution are supplied
// by the caller (spec §1 scope boundary); the command acknowledgement
// texts are fixed in commands.go.
type Config struct {
	Token         string
	ApplicationID string // own user id, compared against VOICE_STATE_UPDATE's member.user.id
	REST          restclient.Client
	DaveFactory   dave.Factory // nil disables DAVE on every voice join
	IdleTimeout   time.Duration
	LocalUDPAddr  string

	Commands CommandHandlers
}

// Client drives the main gateway connection and owns every active
// VoiceSession, keyed by guild_id (spec §9: "ownership is a mapping
// guild_id → VoiceSession, held by the main client").
type Client struct {
	cfg Config

	conn    *websocket.Conn
	writeMu sync.Mutex

	lastSeq          int
	haveSeq          bool
	sessionID        string
	resumeGatewayURL string
	identified       bool

	mu            sync.Mutex
	voiceSessions map[string]*VoiceSession

	futuresMu     sync.Mutex
	voiceStateFut map[string]chan voiceStateResult
	voiceServFut  map[string]chan voiceServerResult

	cancel context.CancelFunc
}

type voiceStateResult struct {
	sessionID string
}

type voiceServerResult struct {
	endpoint string
	token    string
}

// New constructs a Client. The dial target is passed later to Run.
func New(cfg Config) *Client {
	return &Client{
		cfg:           cfg,
		voiceSessions: make(map[string]*VoiceSession),
		voiceStateFut: make(map[string]chan voiceStateResult),
		voiceServFut:  make(map[string]chan voiceServerResult),
	}
}

// Run dials gatewayURL and processes the connection until ctx is
// cancelled, reconnecting on RECONNECT/reconnectable closes and
// recovering from INVALID_SESSION per spec §4.1.
func (c *Client) Run(ctx context.Context, gatewayURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	url := gatewayURL
	for {
		resumeAttempt := c.identified && c.resumeGatewayURL != ""
		dialURL := url
		if resumeAttempt {
			dialURL = c.resumeGatewayURL
		}

		outcome, err := c.connectAndPump(ctx, dialURL, resumeAttempt)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.GatewayReconnects.WithLabelValues("main").Inc()

		switch outcome {
		case outcomeReconnect:
			log.Printf("[gateway] reconnecting in %s", reconnectBackoff)
			if !sleepCtx(ctx, reconnectBackoff) {
				return ctx.Err()
			}
		case outcomeInvalidSession:
			c.identified = false
			log.Printf("[gateway] invalid session, restarting from HELLO in %s", invalidSessionBackoff)
			if !sleepCtx(ctx, invalidSessionBackoff) {
				return ctx.Err()
			}
			url = gatewayURL
		case outcomeFatal:
			return err
		}
	}
}

// Close stops the connection and every owned voice session.
func (c *Client) Close() {
	c.mu.Lock()
	for _, vs := range c.voiceSessions {
		vs.Stop()
	}
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type connectOutcome int

const (
	outcomeReconnect connectOutcome = iota
	outcomeInvalidSession
	outcomeFatal
)

func (c *Client) connectAndPump(ctx context.Context, url string, resuming bool) (connectOutcome, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	log.Printf("[gateway] connecting to %s resume=%v", url, resuming)
	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{HTTPHeader: http.Header{}})
	if err != nil {
		return outcomeReconnect, fmt.Errorf("gateway: dial: %w", err)
	}
	c.conn = conn
	defer func() {
		_ = c.conn.CloseNow()
		c.conn = nil
	}()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	close(heartbeatDone) // replaced with a fresh channel once HELLO actually starts the loop
	defer func() { stopHeartbeat(); <-heartbeatDone }()

	for {
		if ctx.Err() != nil {
			return outcomeFatal, ctx.Err()
		}
		_, data, rerr := c.conn.Read(ctx)
		if rerr != nil {
			code := int(websocket.CloseStatus(rerr))
			return closeOutcome(code), rerr
		}

		evt, perr := gatewayproto.DecodeGatewayEvent(data)
		if perr != nil {
			log.Printf("[gateway] malformed frame, closing: %v", perr)
			_ = c.conn.Close(websocket.StatusUnsupportedData, "malformed frame")
			return outcomeReconnect, perr
		}
		if evt.Sequence != nil {
			c.lastSeq = *evt.Sequence
			c.haveSeq = true
		}

		switch evt.Opcode {
		case gatewayproto.OpHello:
			var hello struct {
				HeartbeatIntervalMs float64 `json:"heartbeat_interval_ms"`
			}
			if err := json.Unmarshal(evt.Data, &hello); err != nil {
				return outcomeFatal, fmt.Errorf("gateway: parse HELLO: %w", err)
			}
			interval := time.Duration(hello.HeartbeatIntervalMs) * time.Millisecond

			if resuming {
				if err := c.sendResume(ctx); err != nil {
					return outcomeFatal, err
				}
			} else if !c.identified {
				if err := c.sendIdentify(ctx); err != nil {
					return outcomeFatal, err
				}
			}
			heartbeatDone = make(chan struct{})
			go c.heartbeatLoop(heartbeatCtx, interval, heartbeatDone)

		case gatewayproto.OpHeartbeat:
			if err := c.sendHeartbeat(ctx); err != nil {
				return outcomeFatal, err
			}

		case gatewayproto.OpHeartbeatAck:
			// no-op

		case gatewayproto.OpReconnect:
			return outcomeReconnect, nil

		case gatewayproto.OpInvalidSession:
			return outcomeInvalidSession, nil

		case gatewayproto.OpDispatch:
			c.handleDispatch(ctx, evt)

		default:
			log.Printf("[gateway] unhandled opcode %d, ignoring", evt.Opcode)
		}
	}
}

func closeOutcome(code int) connectOutcome {
	if code == 0 {
		return outcomeReconnect
	}
	if gatewayproto.Reconnectable(code) {
		return outcomeReconnect
	}
	return outcomeFatal
}

func (c *Client) writeJSON(ctx context.Context, op gatewayproto.Opcode, data any) error {
	payload, err := gatewayproto.EncodeEnvelope(int(op), data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, payload)
}

func (c *Client) sendIdentify(ctx context.Context) error {
	err := c.writeJSON(ctx, gatewayproto.OpIdentify, map[string]any{
		"token": c.cfg.Token,
		"properties": map[string]any{
			"os":      "linux",
			"browser": "meu-chapeu",
			"device":  "meu-chapeu",
		},
		"intents": 1<<7 | 1<<9, // GUILD_VOICE_STATES | GUILD_MESSAGES-equivalent slice the caller actually needs
	})
	if err == nil {
		c.identified = true
	}
	return err
}

func (c *Client) sendResume(ctx context.Context) error {
	return c.writeJSON(ctx, gatewayproto.OpResume, map[string]any{
		"token":      c.cfg.Token,
		"session_id": c.sessionID,
		"seq":        c.lastSeq,
	})
}

func (c *Client) sendHeartbeat(ctx context.Context) error {
	var seq any
	if c.haveSeq {
		seq = c.lastSeq
	}
	return c.writeJSON(ctx, gatewayproto.OpHeartbeat, seq)
}

func (c *Client) heartbeatLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	jitter := time.Duration(rand.Float64() * float64(interval))
	t := time.NewTimer(jitter)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.sendHeartbeat(ctx); err != nil {
				return
			}
			t.Reset(interval)
		}
	}
}

// SendVoiceStateUpdate issues op 4. channelID == "" sends null, used both
// to join (with a non-empty channel) and to leave (spec §4.1 step 2 and
// the voice-session close callback).
func (c *Client) SendVoiceStateUpdate(ctx context.Context, guildID, channelID string, selfMute, selfDeaf bool) error {
	var ch any
	if channelID != "" {
		ch = channelID
	}
	return c.writeJSON(ctx, gatewayproto.OpVoiceStateUpdate, map[string]any{
		"guild_id":   guildID,
		"channel_id": ch,
		"self_mute":  selfMute,
		"self_deaf":  selfDeaf,
	})
}

func (c *Client) handleDispatch(ctx context.Context, evt gatewayproto.GatewayEvent) {
	switch evt.Name {
	case "READY":
		var ready struct {
			SessionID       string `json:"session_id"`
			ResumeGatewayURL string `json:"resume_gateway_url"`
		}
		if err := json.Unmarshal(evt.Data, &ready); err != nil {
			log.Printf("[gateway] parse READY: %v", err)
			return
		}
		c.sessionID = ready.SessionID
		c.resumeGatewayURL = ready.ResumeGatewayURL
		c.identified = true
		log.Printf("[gateway] READY session_id=%s", c.sessionID)

	case "RESUMED":
		log.Printf("[gateway] resumed")

	case "INTERACTION_CREATE":
		c.handleInteraction(ctx, evt.Data)

	case "VOICE_STATE_UPDATE":
		c.handleVoiceStateUpdate(evt.Data)

	case "VOICE_SERVER_UPDATE":
		c.handleVoiceServerUpdate(evt.Data)

	default:
		// other dispatch names are outside this client's scope
	}
}

func (c *Client) handleVoiceStateUpdate(data []byte) {
	var payload struct {
		GuildID string `json:"guild_id"`
		Member  struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"member"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[gateway] parse VOICE_STATE_UPDATE: %v", err)
		return
	}
	if payload.Member.User.ID != c.cfg.ApplicationID {
		return
	}
	c.futuresMu.Lock()
	fut, ok := c.voiceStateFut[payload.GuildID]
	c.futuresMu.Unlock()
	if !ok {
		return
	}
	select {
	case fut <- voiceStateResult{sessionID: payload.SessionID}:
	default:
	}
}

func (c *Client) handleVoiceServerUpdate(data []byte) {
	var payload struct {
		GuildID  string `json:"guild_id"`
		Endpoint string `json:"endpoint"`
		Token    string `json:"token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[gateway] parse VOICE_SERVER_UPDATE: %v", err)
		return
	}
	c.futuresMu.Lock()
	fut, ok := c.voiceServFut[payload.GuildID]
	c.futuresMu.Unlock()
	if !ok {
		return
	}
	select {
	case fut <- voiceServerResult{endpoint: strings.TrimSuffix(payload.Endpoint, ":443"), token: payload.Token}:
	default:
	}
}
