package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rodrigo-weigert/meu-chapeu/internal/media"
	"github.com/rodrigo-weigert/meu-chapeu/internal/restclient"
)

// MediaResolver turns a user-supplied query into a playable Item. Actual
// search/download is out of scope (spec §1); this is the seam the
// caller plugs a resolver into.
type MediaResolver interface {
	Resolve(ctx context.Context, query string) (*media.Item, error)
}

// CommandHandlers wires the two slash commands the gateway understands
// (spec §4.7). Resolver may be nil, in which case "play" always fails.
type CommandHandlers struct {
	PlayCommandName string // defaults to "play"
	SkipCommandName string // defaults to "skip"
	Resolver        MediaResolver
}

type interactionPayload struct {
	ID      string `json:"id"`
	Token   string `json:"token"`
	GuildID string `json:"guild_id"`
	Member  struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"member"`
	Data struct {
		Name    string `json:"name"`
		Options []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"options"`
	} `json:"data"`
}

func (c *Client) handleInteraction(ctx context.Context, raw []byte) {
	var in interactionPayload
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("[gateway] parse INTERACTION_CREATE: %v", err)
		return
	}
	if in.GuildID == "" {
		return
	}

	playName := c.cfg.Commands.PlayCommandName
	if playName == "" {
		playName = "play"
	}
	skipName := c.cfg.Commands.SkipCommandName
	if skipName == "" {
		skipName = "skip"
	}

	switch in.Data.Name {
	case playName:
		var query string
		for _, opt := range in.Data.Options {
			if opt.Name == "query" {
				query = opt.Value
			}
		}
		c.handlePlay(ctx, in, query)
	case skipName:
		c.handleSkip(ctx, in)
	default:
		log.Printf("[gateway] unhandled interaction %q", in.Data.Name)
	}
}

func (c *Client) respond(ctx context.Context, in interactionPayload, content string, ephemeral bool) {
	if c.cfg.REST == nil {
		return
	}
	body := restclient.InteractionResponse{Content: content, Ephemeral: ephemeral}
	if err := c.cfg.REST.RespondInteraction(ctx, in.ID, in.Token, body); err != nil {
		log.Printf("[gateway] respond interaction %s: %v", in.ID, err)
	}
}

func (c *Client) handlePlay(ctx context.Context, in interactionPayload, query string) {
	if query == "" || c.cfg.Commands.Resolver == nil {
		c.respond(ctx, in, "nothing to play", true)
		return
	}

	channelID, ok, err := c.cfg.REST.CurrentVoiceChannel(ctx, in.GuildID, in.Member.User.ID)
	if err != nil || !ok {
		c.respond(ctx, in, "join a voice channel first", true)
		return
	}

	vs, exists := c.VoiceSessionFor(in.GuildID)
	if !exists {
		vs, err = c.JoinVoiceChannel(ctx, in.GuildID, channelID)
		if err != nil {
			log.Printf("[gateway] join voice channel: %v", err)
			c.respond(ctx, in, "could not join your voice channel", true)
			return
		}
	} else if vs.ChannelID != channelID {
		c.respond(ctx, in, "already playing in another channel", true)
		return
	}

	item, err := c.cfg.Commands.Resolver.Resolve(ctx, query)
	if err != nil {
		c.respond(ctx, in, "could not find that", true)
		return
	}
	vs.Queue.Push(item)
	c.respond(ctx, in, fmt.Sprintf("queued %s (%ds)", item.Title, item.DurationS), false)
}

func (c *Client) handleSkip(ctx context.Context, in interactionPayload) {
	vs, ok := c.VoiceSessionFor(in.GuildID)
	if !ok {
		c.respond(ctx, in, "nothing is playing", true)
		return
	}
	vs.Skip()
	c.respond(ctx, in, "skipped", false)
}
