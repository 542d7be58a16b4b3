package restclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGatewayURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v10/gateway" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"url":"wss://gateway.example"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "v10", "json", "tok", "app")
	got, err := c.GatewayURL(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "wss://gateway.example?") || !strings.Contains(got, "v=v10") || !strings.Contains(got, "encoding=json") {
		t.Fatalf("got %q", got)
	}
}

func TestCurrentVoiceChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot tok" {
			t.Fatalf("missing auth header: %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"channel_id":"123"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "v10", "json", "tok", "app")
	ch, ok, err := c.CurrentVoiceChannel(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || ch != "123" {
		t.Fatalf("got ch=%q ok=%v", ch, ok)
	}
}

func TestCurrentVoiceChannelAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "v10", "json", "tok", "app")
	_, ok, err := c.CurrentVoiceChannel(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false when channel_id is absent")
	}
}

func TestRespondInteraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v10/interactions/i1/tok1/callback" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "v10", "json", "tok", "app")
	err := c.RespondInteraction(context.Background(), "i1", "tok1", InteractionResponse{Content: "hi", Ephemeral: true})
	if err != nil {
		t.Fatal(err)
	}
}
