// Package restclient is the minimal REST façade the gateway client
// needs: gateway URL discovery, current-voice-channel lookup, and
// interaction responses. The REST surface itself is out of scope (spec
// §1); this package only covers the handful of calls the gateway state
// machine makes directly (grounded on original_source/http_client.py).
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Client is the interface internal/gateway depends on, so tests can
// substitute a fake without touching the network.
type Client interface {
	GatewayURL(ctx context.Context) (string, error)
	CurrentVoiceChannel(ctx context.Context, guildID, userID string) (channelID string, ok bool, err error)
	RespondInteraction(ctx context.Context, interactionID, token string, body InteractionResponse) error
}

// InteractionFlag mirrors the Discord interaction-response flag bits
// (original_source/interactions.py's InteractionFlag).
type InteractionFlag int

const (
	FlagSuppressEmbeds       InteractionFlag = 1 << 2
	FlagEphemeral            InteractionFlag = 1 << 6
	FlagSuppressNotifications InteractionFlag = 1 << 12
)

// InteractionResponse is the body of an interaction callback (type 4,
// CHANNEL_MESSAGE_WITH_SOURCE).
type InteractionResponse struct {
	Content   string
	Ephemeral bool
}

// HTTPClient is the concrete REST client (grounded on
// original_source/http_client.py's HttpClient: a thin requests wrapper
// keyed by api_url/api_version, Bot-token auth header on every call
// except GET /gateway).
type HTTPClient struct {
	baseURL       string // e.g. "https://discord.com/api/v10"
	apiVersion    string
	encoding      string
	token         string
	applicationID string
	http          *http.Client
}

// New builds an HTTPClient from the loaded Config fields.
func New(apiURL, apiVersion, encoding, token, applicationID string) *HTTPClient {
	return &HTTPClient{
		baseURL:       apiURL + "/" + apiVersion,
		apiVersion:    apiVersion,
		encoding:      encoding,
		token:         token,
		applicationID: applicationID,
		http:          &http.Client{},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, auth bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if auth {
		req.Header.Set("Authorization", "Bot "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// GatewayURL retrieves GET /gateway and appends the api_version/encoding
// query parameters the gateway client dials with (spec §6).
func (c *HTTPClient) GatewayURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.get(ctx, "/gateway", false, &resp); err != nil {
		return "", fmt.Errorf("restclient: GET /gateway: %w", err)
	}
	q := url.Values{"v": {c.apiVersion}, "encoding": {c.encoding}}
	return resp.URL + "?" + q.Encode(), nil
}

// CurrentVoiceChannel looks up a user's current voice channel in a
// guild, used by the play command to resolve where to join (spec §4.7).
func (c *HTTPClient) CurrentVoiceChannel(ctx context.Context, guildID, userID string) (string, bool, error) {
	var resp struct {
		ChannelID string `json:"channel_id"`
	}
	path := fmt.Sprintf("/guilds/%s/voice-states/%s", guildID, userID)
	if err := c.get(ctx, path, true, &resp); err != nil {
		return "", false, fmt.Errorf("restclient: get voice state: %w", err)
	}
	if resp.ChannelID == "" {
		return "", false, nil
	}
	return resp.ChannelID, true, nil
}

// RespondInteraction posts an ephemeral-capable CHANNEL_MESSAGE_WITH_SOURCE
// callback (spec §4.7: "respond with an error (ephemeral)" /
// "acknowledge with title + duration").
func (c *HTTPClient) RespondInteraction(ctx context.Context, interactionID, token string, body InteractionResponse) error {
	flags := 0
	if body.Ephemeral {
		flags = int(FlagEphemeral)
	}
	path := fmt.Sprintf("/interactions/%s/%s/callback", interactionID, token)
	resp, err := c.post(ctx, path, map[string]any{
		"type": 4,
		"data": map[string]any{
			"content": body.Content,
			"flags":   flags,
		},
	})
	if err != nil {
		return fmt.Errorf("restclient: respond interaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("restclient: respond interaction: status %d", resp.StatusCode)
	}
	return nil
}
