package gatewayproto

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestRTPHeaderRoundTrip(t *testing.T) {
	hdr := PackRTPHeader(1234, 960*7, 0xdeadbeef)
	if len(hdr) != RTPHeaderSize {
		t.Fatalf("header length %d, want %d", len(hdr), RTPHeaderSize)
	}
	if hdr[0] != 0x80 || hdr[1] != 0x78 {
		t.Fatalf("fixed prefix wrong: % x", hdr[:2])
	}
	seq, ts, ssrc, ok := UnpackRTPHeader(hdr)
	if !ok {
		t.Fatal("unpack failed")
	}
	if seq != 1234 || ts != 960*7 || ssrc != 0xdeadbeef {
		t.Fatalf("got seq=%d ts=%d ssrc=%x", seq, ts, ssrc)
	}
}

func TestDecodeBinaryMessage(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(42))
	buf.WriteByte(byte(VoiceOpDaveMLSWelcome))
	buf.Write([]byte{0, 7, 'h', 'i'})

	msg, err := DecodeBinaryMessage(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if msg.SequenceNumber != 42 || msg.Opcode != VoiceOpDaveMLSWelcome {
		t.Fatalf("got %+v", msg)
	}

	w, err := ParseMLSWelcome(msg.Body)
	if err != nil {
		t.Fatal(err)
	}
	if w.TransitionID != 7 || string(w.WelcomeMessage) != "hi" {
		t.Fatalf("got %+v", w)
	}
}

func TestParseExternalSender(t *testing.T) {
	var body []byte
	sigVec, _ := EncodeVector([]byte("sigkey"))
	body = append(body, sigVec...)
	credType := make([]byte, 2)
	binary.BigEndian.PutUint16(credType, 1)
	body = append(body, credType...)
	idVec, _ := EncodeVector([]byte("identity"))
	body = append(body, idVec...)

	es, err := ParseExternalSender(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(es.SignatureKey) != "sigkey" || es.Credential.CredentialType != 1 || string(es.Credential.Identity) != "identity" {
		t.Fatalf("got %+v", es)
	}
}

func TestParseMLSProposalsMessages(t *testing.T) {
	vec, _ := EncodeVector([]byte("proposal-bytes"))
	body := append([]byte{byte(MLSProposalsMessages)}, vec...)
	p, err := ParseMLSProposals(body)
	if err != nil {
		t.Fatal(err)
	}
	if p.Operation != MLSProposalsMessages || string(p.ProposalMessages) != "proposal-bytes" {
		t.Fatalf("got %+v", p)
	}
}

func TestParseMLSProposalsUnknownOperation(t *testing.T) {
	vec, _ := EncodeVector([]byte("x"))
	body := append([]byte{2}, vec...)
	if _, err := ParseMLSProposals(body); err == nil {
		t.Fatal("expected error for unknown operation type")
	}
}

func TestPeekBinarySequence(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(999))
	buf.WriteByte(byte(VoiceOpDaveMLSExternalSender))

	seq, ok := PeekBinarySequence(buf.Bytes())
	if !ok || seq != 999 {
		t.Fatalf("got seq=%d ok=%v", seq, ok)
	}

	if _, ok := PeekBinarySequence([]byte{1}); ok {
		t.Fatal("expected ok=false for a truncated buffer")
	}
}
