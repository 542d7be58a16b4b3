package gatewayproto

import (
	"encoding/binary"
	"fmt"
)

// BinaryMessage is the server→client binary DAVE envelope (spec §6):
// u16 sequence_number || u8 opcode || body.
type BinaryMessage struct {
	SequenceNumber uint16
	Opcode         VoiceOpcode
	Body           []byte
}

// DecodeBinaryMessage parses the 3-byte binary prefix off raw.
func DecodeBinaryMessage(raw []byte) (BinaryMessage, error) {
	if len(raw) < 3 {
		return BinaryMessage{}, fmt.Errorf("gatewayproto: binary frame too short (%d bytes)", len(raw))
	}
	return BinaryMessage{
		SequenceNumber: binary.BigEndian.Uint16(raw[0:2]),
		Opcode:         VoiceOpcode(raw[2]),
		Body:           raw[3:],
	}, nil
}

// PeekBinarySequence reads just the sequence_number prefix of a binary
// DAVE frame, without validating the rest of it — used to keep
// heartbeat seq_ack current even for frames the client otherwise drops.
func PeekBinarySequence(raw []byte) (uint16, bool) {
	if len(raw) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(raw[0:2]), true
}

// EncodeOutgoingBinary builds the client→server binary frame: u8 opcode
// || body (spec §6 — outgoing frames carry no sequence number).
func EncodeOutgoingBinary(op VoiceOpcode, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(op)
	copy(out[1:], body)
	return out
}

// Credential is the MLS credential embedded in an ExternalSender.
type Credential struct {
	CredentialType uint16
	Identity       []byte
}

// ExternalSender is the body of opcode 25 (DAVE_MLS_EXTERNAL_SENDER).
type ExternalSender struct {
	SignatureKey []byte
	Credential   Credential
}

// ParseExternalSender decodes `{Vector signature_key, Credential}`.
func ParseExternalSender(body []byte) (ExternalSender, error) {
	sig, n, err := DecodeVector(body)
	if err != nil {
		return ExternalSender{}, fmt.Errorf("gatewayproto: external sender signature_key: %w", err)
	}
	rest := body[n:]
	if len(rest) < 2 {
		return ExternalSender{}, ErrVectorTruncated
	}
	credType := binary.BigEndian.Uint16(rest[0:2])
	identity, _, err := DecodeVector(rest[2:])
	if err != nil {
		return ExternalSender{}, fmt.Errorf("gatewayproto: external sender identity: %w", err)
	}
	return ExternalSender{
		SignatureKey: sig,
		Credential:   Credential{CredentialType: credType, Identity: identity},
	}, nil
}

// MLSProposalsOperation distinguishes the two shapes opcode 27 can carry.
type MLSProposalsOperation uint8

const (
	MLSProposalsMessages MLSProposalsOperation = 0
	MLSProposalsRefs     MLSProposalsOperation = 1
)

// MLSProposals is the body of opcode 27 (DAVE_MLS_PROPOSALS). Exactly
// one of ProposalMessages/ProposalRefs is populated, selected by
// Operation (spec §4.6 validates this exclusivity).
type MLSProposals struct {
	Operation        MLSProposalsOperation
	ProposalMessages []byte
	ProposalRefs     []byte
}

// ParseMLSProposals decodes `u8 operation_type` followed by the
// corresponding Vector.
func ParseMLSProposals(body []byte) (MLSProposals, error) {
	if len(body) < 1 {
		return MLSProposals{}, ErrVectorTruncated
	}
	op := MLSProposalsOperation(body[0])
	vec, _, err := DecodeVector(body[1:])
	if err != nil {
		return MLSProposals{}, fmt.Errorf("gatewayproto: mls proposals vector: %w", err)
	}
	switch op {
	case MLSProposalsMessages:
		return MLSProposals{Operation: op, ProposalMessages: vec}, nil
	case MLSProposalsRefs:
		return MLSProposals{Operation: op, ProposalRefs: vec}, nil
	default:
		return MLSProposals{}, fmt.Errorf("gatewayproto: unknown mls proposals operation_type %d", body[0])
	}
}

// AnnounceCommitTransition is the body of opcode 29
// (DAVE_MLS_ANNOUNCE_COMMIT_TRANSITION): u16 transition_id || rest of
// frame is the commit message.
type AnnounceCommitTransition struct {
	TransitionID  uint16
	CommitMessage []byte
}

func ParseAnnounceCommitTransition(body []byte) (AnnounceCommitTransition, error) {
	if len(body) < 2 {
		return AnnounceCommitTransition{}, ErrVectorTruncated
	}
	return AnnounceCommitTransition{
		TransitionID:  binary.BigEndian.Uint16(body[0:2]),
		CommitMessage: body[2:],
	}, nil
}

// MLSWelcome is the body of opcode 30 (DAVE_MLS_WELCOME): u16
// transition_id || rest of frame is the welcome message.
type MLSWelcome struct {
	TransitionID   uint16
	WelcomeMessage []byte
}

func ParseMLSWelcome(body []byte) (MLSWelcome, error) {
	if len(body) < 2 {
		return MLSWelcome{}, ErrVectorTruncated
	}
	return MLSWelcome{
		TransitionID:   binary.BigEndian.Uint16(body[0:2]),
		WelcomeMessage: body[2:],
	}, nil
}
