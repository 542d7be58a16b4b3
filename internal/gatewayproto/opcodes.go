// Package gatewayproto implements the wire-level framing shared by the
// main and voice gateway clients: JSON envelopes, opcode enums, the
// binary DAVE message format, the Vector length-header codec and RTP
// header packing (spec §6).
package gatewayproto

// Opcode is a main-gateway operation code.
type Opcode int

const (
	OpDispatch        Opcode = 0
	OpHeartbeat       Opcode = 1
	OpIdentify        Opcode = 2
	OpVoiceStateUpdate Opcode = 4
	OpResume          Opcode = 6
	OpReconnect       Opcode = 7
	OpInvalidSession  Opcode = 9
	OpHello           Opcode = 10
	OpHeartbeatAck    Opcode = 11
)

// VoiceOpcode is a voice-gateway operation code.
type VoiceOpcode int

const (
	VoiceOpIdentify                      VoiceOpcode = 0
	VoiceOpSelectProtocol                VoiceOpcode = 1
	VoiceOpReady                         VoiceOpcode = 2
	VoiceOpHeartbeat                     VoiceOpcode = 3
	VoiceOpSessionDescription            VoiceOpcode = 4
	VoiceOpSpeaking                      VoiceOpcode = 5
	VoiceOpHeartbeatAck                  VoiceOpcode = 6
	VoiceOpResume                        VoiceOpcode = 7
	VoiceOpHello                         VoiceOpcode = 8
	VoiceOpResumed                       VoiceOpcode = 9
	VoiceOpClientsConnect                VoiceOpcode = 11
	VoiceOpClientsDisconnect             VoiceOpcode = 13
	VoiceOpDavePrepareTransition         VoiceOpcode = 21
	VoiceOpDaveExecuteTransition         VoiceOpcode = 22
	VoiceOpDaveTransitionReady           VoiceOpcode = 23
	VoiceOpDavePrepareEpoch              VoiceOpcode = 24
	VoiceOpDaveMLSExternalSender         VoiceOpcode = 25
	VoiceOpDaveMLSKeyPackage             VoiceOpcode = 26
	VoiceOpDaveMLSProposals              VoiceOpcode = 27
	VoiceOpDaveMLSCommitWelcome          VoiceOpcode = 28
	VoiceOpDaveMLSAnnounceCommitTransition VoiceOpcode = 29
	VoiceOpDaveMLSWelcome                VoiceOpcode = 30
	VoiceOpDaveMLSInvalidCommitWelcome   VoiceOpcode = 31
)

// reconnectableCodes are the main-gateway close codes for which the
// client should reopen at resume_gateway_url and RESUME (spec §4.1).
var reconnectableCodes = map[int]bool{
	1001: true, 1006: true,
	4000: true, 4001: true, 4002: true, 4003: true,
	4005: true,
	4007: true, 4008: true, 4009: true,
}

// Reconnectable reports whether a main-gateway close code should trigger
// RESUME rather than a full re-identify.
func Reconnectable(code int) bool { return reconnectableCodes[code] }

// voiceReconnectCodes are voice-gateway close codes for which the client
// should reopen and RESUME (spec §4.2).
var voiceReconnectCodes = map[int]bool{1001: true, 1006: true, 4015: true}

// VoiceReconnectable reports whether a voice-gateway close code should
// trigger RESUME.
func VoiceReconnectable(code int) bool { return voiceReconnectCodes[code] }

// VoicePermanentClose reports whether a voice-gateway close code means
// the session is over for good (kicked/terminated, spec §4.2/§7).
func VoicePermanentClose(code int) bool { return code == 4014 || code == 4022 }
