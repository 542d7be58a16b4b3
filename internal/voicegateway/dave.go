package voicegateway

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rodrigo-weigert/meu-chapeu/internal/dave"
	"github.com/rodrigo-weigert/meu-chapeu/internal/gatewayproto"
)

// externalSenderTimeout bounds how long a DAVE handler will wait for
// set_external_sender before aborting just that handler (spec §5/§7).
const externalSenderTimeout = 10 * time.Second

// handleDaveBinary dispatches one incoming binary DAVE frame (spec §4.3,
// §6). Unknown opcodes are logged and ignored (spec §7); malformed
// bodies are logged and the frame dropped rather than closing the
// connection, since the surrounding text-frame protocol stays healthy.
func (c *Client) handleDaveBinary(ctx context.Context, raw []byte) error {
	if c.daveMgr == nil {
		log.Printf("[voicegateway] dave frame received but DAVE is disabled, ignoring")
		return nil
	}
	msg, err := gatewayproto.DecodeBinaryMessage(raw)
	if err != nil {
		log.Printf("[voicegateway] malformed binary frame, dropping: %v", err)
		return nil
	}

	switch msg.Opcode {
	case gatewayproto.VoiceOpDaveMLSExternalSender:
		return c.handleExternalSender(msg.Body)

	case gatewayproto.VoiceOpDaveMLSWelcome:
		return c.handleMLSWelcome(ctx, msg.Body)

	case gatewayproto.VoiceOpDaveExecuteTransition:
		return c.handleExecuteTransition(msg.Body)

	case gatewayproto.VoiceOpDaveMLSProposals:
		return c.handleMLSProposals(ctx, msg.Body)

	case gatewayproto.VoiceOpDaveMLSAnnounceCommitTransition:
		return c.handleAnnounceCommitTransition(ctx, msg.Body)

	case gatewayproto.VoiceOpDavePrepareTransition:
		return c.handlePrepareTransition(msg.Body)

	case gatewayproto.VoiceOpDavePrepareEpoch:
		log.Printf("[voicegateway] DAVE_PREPARE_EPOCH received, no action required")
		return nil

	default:
		log.Printf("[voicegateway] unhandled DAVE opcode %d, ignoring", msg.Opcode)
		return nil
	}
}

func (c *Client) handleExternalSender(body []byte) error {
	sender, err := gatewayproto.ParseExternalSender(body)
	if err != nil {
		return fmt.Errorf("voicegateway: parse external sender: %w", err)
	}
	c.daveMgr.SetExternalSender(sender.Credential.Identity, sender.SignatureKey)
	c.externalSenderOnce.Do(func() { close(c.externalSenderCh) })
	return nil
}

func (c *Client) waitExternalSenderReady(ctx context.Context) error {
	select {
	case <-c.externalSenderCh:
		return nil
	case <-time.After(externalSenderTimeout):
		return fmt.Errorf("voicegateway: external sender readiness timed out after %s", externalSenderTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) handleMLSWelcome(ctx context.Context, body []byte) error {
	welcome, err := gatewayproto.ParseMLSWelcome(body)
	if err != nil {
		return fmt.Errorf("voicegateway: parse mls welcome: %w", err)
	}
	if err := c.waitExternalSenderReady(ctx); err != nil {
		log.Printf("[voicegateway] aborting welcome handler: %v", err)
		return nil
	}
	if err := c.daveMgr.StageTransitionFromWelcome(welcome.TransitionID, welcome.WelcomeMessage); err != nil {
		return fmt.Errorf("voicegateway: stage welcome transition: %w", err)
	}
	return c.resolveOrAwaitTransition(ctx, welcome.TransitionID)
}

func (c *Client) handleAnnounceCommitTransition(ctx context.Context, body []byte) error {
	announce, err := gatewayproto.ParseAnnounceCommitTransition(body)
	if err != nil {
		return fmt.Errorf("voicegateway: parse announce commit transition: %w", err)
	}
	stageErr := c.daveMgr.StageTransitionFromCommit(announce.TransitionID, announce.CommitMessage)
	if stageErr != nil {
		if errors.Is(stageErr, dave.ErrInvalidCommit) {
			return c.recoverFromInvalidCommit(ctx, announce.TransitionID)
		}
		return fmt.Errorf("voicegateway: stage commit transition: %w", stageErr)
	}
	return c.resolveOrAwaitTransition(ctx, announce.TransitionID)
}

// resolveOrAwaitTransition executes transition_id 0 immediately (spec
// scenario S2); any other id waits for the server's
// DAVE_EXECUTE_TRANSITION, signalled by first sending
// DAVE_TRANSITION_READY (spec scenario S3).
func (c *Client) resolveOrAwaitTransition(ctx context.Context, transitionID uint16) error {
	if transitionID == 0 {
		typ, ok := c.daveMgr.ExecuteTransition(0)
		if ok && typ == dave.TransitionWelcome {
			c.setDaveReady()
		}
		return nil
	}
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, transitionID)
	return c.writeBinary(ctx, gatewayproto.VoiceOpDaveTransitionReady, body)
}

func (c *Client) handleExecuteTransition(body []byte) error {
	if len(body) < 2 {
		return fmt.Errorf("voicegateway: execute transition frame too short")
	}
	transitionID := binary.BigEndian.Uint16(body[0:2])
	typ, ok := c.daveMgr.ExecuteTransition(transitionID)
	if !ok {
		log.Printf("[voicegateway] execute transition %d: no matching pending transition (no-op)", transitionID)
		return nil
	}
	if typ == dave.TransitionWelcome {
		c.setDaveReady()
	}
	return nil
}

func (c *Client) handleMLSProposals(ctx context.Context, body []byte) error {
	proposals, err := gatewayproto.ParseMLSProposals(body)
	if err != nil {
		return fmt.Errorf("voicegateway: parse mls proposals: %w", err)
	}
	payload := proposals.ProposalMessages
	if proposals.Operation == gatewayproto.MLSProposalsRefs {
		payload = proposals.ProposalRefs
	}
	out, ok, err := c.daveMgr.AppendProposals(payload)
	if err != nil {
		return fmt.Errorf("voicegateway: append proposals: %w", err)
	}
	if !ok {
		log.Printf("[voicegateway] append proposals skipped: session invalidated")
		return nil
	}
	return c.writeBinary(ctx, gatewayproto.VoiceOpDaveMLSCommitWelcome, out)
}

// recoverFromInvalidCommit implements spec §7's DAVE invalid commit
// policy: reset the session, announce the recovery, and republish a key
// package (spec scenario S4: observed in that order).
func (c *Client) recoverFromInvalidCommit(ctx context.Context, transitionID uint16) error {
	log.Printf("[voicegateway] invalid commit on transition %d, recovering", transitionID)
	c.daveMgr.Reset()

	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, transitionID)
	if err := c.writeBinary(ctx, gatewayproto.VoiceOpDaveMLSInvalidCommitWelcome, body); err != nil {
		return err
	}
	return c.writeBinary(ctx, gatewayproto.VoiceOpDaveMLSKeyPackage, c.daveMgr.KeyPackageMessage())
}

// handlePrepareTransition only enforces the protocol_version bound; the
// actual transition is driven by the WELCOME/COMMIT/EXECUTE flow above
// (spec §9 open question: versions beyond 1 are explicitly rejected).
func (c *Client) handlePrepareTransition(body []byte) error {
	if len(body) < 2 {
		return fmt.Errorf("voicegateway: prepare transition frame too short")
	}
	protocolVersion := binary.BigEndian.Uint16(body[0:2])
	if protocolVersion > 1 {
		return fmt.Errorf("voicegateway: DAVE protocol_version %d not implemented (only 0 and 1 are supported)", protocolVersion)
	}
	return nil
}
