package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// InnerTagSize is the truncated authentication tag length used by the
// E2EE per-frame layer (spec §4.5: "ciphertext || tag[0..8]").
const InnerTagSize = 8

func innerAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, InnerTagSize)
}

// innerNonce builds the 12-byte GCM nonce for the E2EE inner layer: 8
// zero bytes followed by the media key's 32-bit per-packet nonce,
// appended big-endian to match the MLS exporter convention the
// reference library uses (spec §9 open question, resolved in
// DESIGN.md).
func innerNonce(nonce uint32) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[8:], nonce)
	return buf
}

// EncryptInner seals plaintext (an Opus frame) under the media key with
// an 8-byte truncated tag and no AAD.
func EncryptInner(key []byte, nonce uint32, plaintext []byte) ([]byte, error) {
	a, err := innerAEAD(key)
	if err != nil {
		return nil, err
	}
	return a.Seal(nil, innerNonce(nonce), plaintext, nil), nil
}

// DecryptInner opens a ciphertext produced by EncryptInner.
func DecryptInner(key []byte, nonce uint32, ciphertext []byte) ([]byte, error) {
	a, err := innerAEAD(key)
	if err != nil {
		return nil, err
	}
	return a.Open(nil, innerNonce(nonce), ciphertext, nil)
}
