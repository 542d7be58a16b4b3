package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rodrigo-weigert/meu-chapeu/internal/media"
	"github.com/rodrigo-weigert/meu-chapeu/internal/voicegateway"
)

// voiceFutureTimeout bounds how long the client waits for Discord to
// deliver the VOICE_STATE_UPDATE/VOICE_SERVER_UPDATE dispatch pair
// after requesting a join (spec doesn't name a bound for this step, so
// this mirrors the DAVE external-sender readiness timeout used
// elsewhere in the same state machine).
const voiceFutureTimeout = 10 * time.Second

// VoiceSession bundles the voice connection, its media queue, and its
// player for one guild (spec §9: "ownership is a mapping guild_id →
// VoiceSession, held by the main client").
type VoiceSession struct {
	GuildID   string
	ChannelID string

	client *voicegateway.Client
	Queue  *media.Queue
	player *media.Player

	cancel context.CancelFunc
}

// Stop tears down the voice connection and its player loop.
func (vs *VoiceSession) Stop() {
	vs.client.Stop()
	if vs.cancel != nil {
		vs.cancel()
	}
}

// Skip stops the currently playing item, if any.
func (vs *VoiceSession) Skip() {
	vs.player.Skip()
}

// JoinVoiceChannel performs the voice-join sub-protocol (spec §4.1):
// create one-shot futures keyed by guild_id, send VOICE_STATE_UPDATE,
// await both futures, then construct and start a voicegateway.Client.
func (c *Client) JoinVoiceChannel(ctx context.Context, guildID, channelID string) (*VoiceSession, error) {
	stateFut := make(chan voiceStateResult, 1)
	servFut := make(chan voiceServerResult, 1)
	c.futuresMu.Lock()
	c.voiceStateFut[guildID] = stateFut
	c.voiceServFut[guildID] = servFut
	c.futuresMu.Unlock()
	defer func() {
		c.futuresMu.Lock()
		delete(c.voiceStateFut, guildID)
		delete(c.voiceServFut, guildID)
		c.futuresMu.Unlock()
	}()

	if err := c.SendVoiceStateUpdate(ctx, guildID, channelID, false, true); err != nil {
		return nil, fmt.Errorf("gateway: join %s: %w", guildID, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, voiceFutureTimeout)
	defer cancel()

	var state voiceStateResult
	var serv voiceServerResult
	var gotState, gotServ bool
	for !gotState || !gotServ {
		select {
		case state = <-stateFut:
			gotState = true
		case serv = <-servFut:
			gotServ = true
		case <-waitCtx.Done():
			return nil, fmt.Errorf("gateway: join %s: timed out waiting for voice state/server update", guildID)
		}
	}

	vsCtx, vsCancel := context.WithCancel(context.Background())
	vs := &VoiceSession{GuildID: guildID, ChannelID: channelID, cancel: vsCancel, Queue: media.NewQueue()}

	vgCfg := voicegateway.Config{
		Token:        serv.token,
		GuildID:      guildID,
		UserID:       c.cfg.ApplicationID,
		SessionID:    state.sessionID,
		Endpoint:     serv.endpoint,
		LocalUDPAddr: c.cfg.LocalUDPAddr,
		DaveFactory:  c.cfg.DaveFactory,
	}
	leave := func() {
		_ = c.SendVoiceStateUpdate(context.Background(), guildID, "", false, true)
		c.mu.Lock()
		if c.voiceSessions[guildID] == vs {
			delete(c.voiceSessions, guildID)
		}
		c.mu.Unlock()
	}
	vs.client = voicegateway.New(vgCfg, func(code int) {
		log.Printf("[gateway] voice session %s closed (code %d), leaving channel", guildID, code)
		leave()
		vsCancel()
	})

	idleTimeout := c.cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 5 * time.Minute
	}
	vs.player = media.NewPlayer(vs.Queue, vs.client, idleTimeout, func() {
		log.Printf("[gateway] voice session %s idle, leaving", guildID)
		leave()
		vs.Stop()
	})

	go func() {
		if err := vs.client.Run(vsCtx); err != nil && vsCtx.Err() == nil {
			log.Printf("[gateway] voice session %s run error: %v", guildID, err)
		}
	}()
	go vs.player.Run(vsCtx)

	c.mu.Lock()
	c.voiceSessions[guildID] = vs
	c.mu.Unlock()

	return vs, nil
}

// VoiceSessionFor returns the active VoiceSession for a guild, if any.
func (c *Client) VoiceSessionFor(guildID string) (*VoiceSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vs, ok := c.voiceSessions[guildID]
	return vs, ok
}
