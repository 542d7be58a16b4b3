package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rodrigo-weigert/meu-chapeu/internal/media"
	"github.com/rodrigo-weigert/meu-chapeu/internal/restclient"
)

type fakeREST struct {
	channelID    string
	channelOK    bool
	channelErr   error
	lastResponse restclient.InteractionResponse
}

func (f *fakeREST) GatewayURL(ctx context.Context) (string, error) { return "wss://example.com", nil }

func (f *fakeREST) CurrentVoiceChannel(ctx context.Context, guildID, userID string) (string, bool, error) {
	return f.channelID, f.channelOK, f.channelErr
}

func (f *fakeREST) RespondInteraction(ctx context.Context, interactionID, token string, body restclient.InteractionResponse) error {
	f.lastResponse = body
	return nil
}

type fakeResolver struct {
	item *media.Item
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, query string) (*media.Item, error) {
	return f.item, f.err
}

func interactionJSON(t *testing.T, name, query string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"id":    "interaction-1",
		"token": "tok",
		"guild_id": "guild1",
		"member": map[string]any{
			"user": map[string]any{"id": "user1"},
		},
		"data": map[string]any{
			"name": name,
			"options": []map[string]any{
				{"name": "query", "value": query},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestHandlePlayRejectsWhenUserNotInVoice(t *testing.T) {
	rest := &fakeREST{channelOK: false}
	c := New(Config{REST: rest, Commands: CommandHandlers{Resolver: &fakeResolver{}}})

	c.handleInteraction(context.Background(), interactionJSON(t, "play", "some song"))

	if !rest.lastResponse.Ephemeral {
		t.Fatal("expected an ephemeral error response")
	}
}

func TestHandlePlayRejectsEmptyQuery(t *testing.T) {
	rest := &fakeREST{channelID: "chan1", channelOK: true}
	c := New(Config{REST: rest, Commands: CommandHandlers{Resolver: &fakeResolver{}}})

	c.handleInteraction(context.Background(), interactionJSON(t, "play", ""))

	if !rest.lastResponse.Ephemeral {
		t.Fatal("expected an ephemeral error response for empty query")
	}
}

func TestHandleSkipWithNoActiveSession(t *testing.T) {
	rest := &fakeREST{}
	c := New(Config{REST: rest})

	data, _ := json.Marshal(map[string]any{
		"id": "i1", "token": "t1", "guild_id": "guild1",
		"member": map[string]any{"user": map[string]any{"id": "user1"}},
		"data":   map[string]any{"name": "skip"},
	})
	c.handleInteraction(context.Background(), data)

	if !rest.lastResponse.Ephemeral || rest.lastResponse.Content != "nothing is playing" {
		t.Fatalf("unexpected response: %+v", rest.lastResponse)
	}
}

func TestHandlePlayResolverError(t *testing.T) {
	rest := &fakeREST{channelID: "chan1", channelOK: true}
	c := New(Config{REST: rest, Commands: CommandHandlers{Resolver: &fakeResolver{err: errors.New("no results")}}})

	// Pre-seed a voice session so JoinVoiceChannel is never exercised here.
	c.voiceSessions["guild1"] = &VoiceSession{GuildID: "guild1", ChannelID: "chan1", Queue: media.NewQueue(), client: nil}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
	}()
	c.handleInteraction(context.Background(), interactionJSON(t, "play", "some song"))

	if !rest.lastResponse.Ephemeral {
		t.Fatal("expected an ephemeral error response when resolution fails")
	}
}
