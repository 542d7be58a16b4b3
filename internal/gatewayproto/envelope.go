package gatewayproto

import "encoding/json"

// Envelope is the `{"op": int, "d": any, "s": int?, "t": string?}` shape
// used by both gateways (spec §6).
type Envelope struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  *int            `json:"s,omitempty"`
	Name string          `json:"t,omitempty"`
}

// GatewayEvent is a decoded main-gateway control message. Immutable once
// constructed — callers never mutate a received event in place.
type GatewayEvent struct {
	Opcode   Opcode
	Sequence *int
	Name     string
	Data     json.RawMessage
}

// DecodeGatewayEvent parses a raw JSON envelope frame.
func DecodeGatewayEvent(raw []byte) (GatewayEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return GatewayEvent{}, err
	}
	return GatewayEvent{
		Opcode:   Opcode(env.Op),
		Sequence: env.Seq,
		Name:     env.Name,
		Data:     env.Data,
	}, nil
}

// EncodeEnvelope marshals an outbound `{op, d}` frame.
func EncodeEnvelope(op int, data any) ([]byte, error) {
	d, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Op: op, Data: d})
}

// VoiceEvent is a decoded voice-gateway message, sourced from either the
// text JSON envelope or the binary DAVE framing (spec §3). Immutable
// once constructed.
type VoiceEvent struct {
	Opcode         VoiceOpcode
	SequenceNumber uint16 // only meaningful for binary-sourced events
	Data           json.RawMessage
	Binary         []byte // raw DAVE body, only meaningful for binary-sourced events
}

// DecodeVoiceEvent parses a text JSON voice-gateway frame.
func DecodeVoiceEvent(raw []byte) (VoiceEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return VoiceEvent{}, err
	}
	evt := VoiceEvent{Opcode: VoiceOpcode(env.Op), Data: env.Data}
	if env.Seq != nil && *env.Seq >= 0 {
		evt.SequenceNumber = uint16(*env.Seq)
	}
	return evt, nil
}

// EncodeVoiceEnvelope marshals an outbound voice-gateway `{op, d}` frame.
func EncodeVoiceEnvelope(op VoiceOpcode, data any) ([]byte, error) {
	return EncodeEnvelope(int(op), data)
}
