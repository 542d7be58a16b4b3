// Package aead implements the two-layer crypto of spec §9: an outer
// transport AEAD (XChaCha20-Poly1305 or AES-256-GCM, both "RTP-size"
// variants whose nonce is a fixed prefix plus a 32-bit per-packet
// suffix) and an inner, optional, truncated-tag AES-GCM used by the
// E2EE media-key layer. The two are kept as distinct pure functions
// over (key, nonce, aad, plaintext) — neither layer knows about the
// other.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// TransportMode selects the outer AEAD, chosen during voice-session
// negotiation (spec §3: AES-GCM preferred when offered).
type TransportMode string

const (
	ModeXChaCha20Poly1305RTPSize TransportMode = "aead_xchacha20_poly1305_rtpsize"
	ModeAES256GCMRTPSize         TransportMode = "aead_aes256_gcm_rtpsize"
)

// PreferredMode picks AES-GCM over XChaCha20-Poly1305 when both are
// offered (spec §3/§4.2: "AES-GCM preferred when offered").
func PreferredMode(offered []string) (TransportMode, bool) {
	has := func(m TransportMode) bool {
		for _, o := range offered {
			if o == string(m) {
				return true
			}
		}
		return false
	}
	if has(ModeAES256GCMRTPSize) {
		return ModeAES256GCMRTPSize, true
	}
	if has(ModeXChaCha20Poly1305RTPSize) {
		return ModeXChaCha20Poly1305RTPSize, true
	}
	return "", false
}

// outerNonce builds the full-width nonce for mode from the 32-bit
// per-packet counter: 20 zero bytes prefix for XChaCha20 (24-byte
// nonce), 8 zero bytes prefix for AES-GCM (12-byte nonce) — spec §4.5.
func outerNonce(mode TransportMode, rtpNonce uint32) ([]byte, error) {
	var prefix int
	switch mode {
	case ModeXChaCha20Poly1305RTPSize:
		prefix = 20
	case ModeAES256GCMRTPSize:
		prefix = 8
	default:
		return nil, fmt.Errorf("aead: unknown transport mode %q", mode)
	}
	nonce := make([]byte, prefix+4)
	binary.LittleEndian.PutUint32(nonce[prefix:], rtpNonce)
	return nonce, nil
}

func outerAEAD(mode TransportMode, key []byte) (cipher.AEAD, error) {
	switch mode {
	case ModeXChaCha20Poly1305RTPSize:
		return chacha20poly1305.NewX(key)
	case ModeAES256GCMRTPSize:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("aead: unknown transport mode %q", mode)
	}
}

// Seal encrypts plaintext under the outer transport AEAD for the given
// 32-bit RTP nonce counter, with aad bound in (the RTP header, per
// spec §4.5).
func Seal(mode TransportMode, key []byte, rtpNonce uint32, aad, plaintext []byte) ([]byte, error) {
	a, err := outerAEAD(mode, key)
	if err != nil {
		return nil, err
	}
	nonce, err := outerNonce(mode, rtpNonce)
	if err != nil {
		return nil, err
	}
	return a.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts ciphertext sealed by Seal with the same mode/key/nonce/aad.
func Open(mode TransportMode, key []byte, rtpNonce uint32, aad, ciphertext []byte) ([]byte, error) {
	a, err := outerAEAD(mode, key)
	if err != nil {
		return nil, err
	}
	nonce, err := outerNonce(mode, rtpNonce)
	if err != nil {
		return nil, err
	}
	return a.Open(nil, nonce, ciphertext, aad)
}
