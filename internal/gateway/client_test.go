package gateway

import (
	"encoding/json"
	"testing"

	"github.com/rodrigo-weigert/meu-chapeu/internal/gatewayproto"
)

func TestCloseOutcomeReconnectable(t *testing.T) {
	cases := map[int]connectOutcome{
		0:    outcomeReconnect,
		1001: outcomeReconnect,
		4009: outcomeReconnect,
		4004: outcomeFatal,
		4010: outcomeFatal,
	}
	for code, want := range cases {
		if got := closeOutcome(code); got != want {
			t.Errorf("closeOutcome(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestHandleVoiceStateUpdateResolvesFuture(t *testing.T) {
	c := New(Config{ApplicationID: "self-id"})
	fut := make(chan voiceStateResult, 1)
	c.voiceStateFut["guild1"] = fut

	payload, _ := json.Marshal(map[string]any{
		"guild_id":   "guild1",
		"session_id": "sess-abc",
		"member": map[string]any{
			"user": map[string]any{"id": "self-id"},
		},
	})
	c.handleVoiceStateUpdate(payload)

	select {
	case res := <-fut:
		if res.sessionID != "sess-abc" {
			t.Fatalf("sessionID = %q, want sess-abc", res.sessionID)
		}
	default:
		t.Fatal("expected future to be resolved")
	}
}

func TestHandleVoiceStateUpdateIgnoresOtherUsers(t *testing.T) {
	c := New(Config{ApplicationID: "self-id"})
	fut := make(chan voiceStateResult, 1)
	c.voiceStateFut["guild1"] = fut

	payload, _ := json.Marshal(map[string]any{
		"guild_id":   "guild1",
		"session_id": "sess-abc",
		"member": map[string]any{
			"user": map[string]any{"id": "someone-else"},
		},
	})
	c.handleVoiceStateUpdate(payload)

	select {
	case <-fut:
		t.Fatal("future should not resolve for a different user")
	default:
	}
}

func TestHandleVoiceServerUpdateStripsPort(t *testing.T) {
	c := New(Config{})
	fut := make(chan voiceServerResult, 1)
	c.voiceServFut["guild1"] = fut

	payload, _ := json.Marshal(map[string]any{
		"guild_id": "guild1",
		"endpoint": "region.voice.example.com:443",
		"token":    "vtoken",
	})
	c.handleVoiceServerUpdate(payload)

	res := <-fut
	if res.endpoint != "region.voice.example.com" {
		t.Fatalf("endpoint = %q, want stripped of :443", res.endpoint)
	}
	if res.token != "vtoken" {
		t.Fatalf("token = %q, want vtoken", res.token)
	}
}

func TestHandleDispatchReady(t *testing.T) {
	c := New(Config{})
	data, _ := json.Marshal(map[string]any{
		"session_id":        "sess-1",
		"resume_gateway_url": "wss://resume.example.com",
	})
	c.handleDispatch(nil, gatewayproto.GatewayEvent{Name: "READY", Data: data})

	if c.sessionID != "sess-1" {
		t.Fatalf("sessionID = %q, want sess-1", c.sessionID)
	}
	if c.resumeGatewayURL != "wss://resume.example.com" {
		t.Fatalf("resumeGatewayURL = %q", c.resumeGatewayURL)
	}
	if !c.identified {
		t.Fatal("expected identified=true after READY")
	}
}
