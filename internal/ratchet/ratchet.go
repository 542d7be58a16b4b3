// Package ratchet implements the HKDF-Expand key ratchet used by the
// DAVE E2EE layer to derive per-generation media keys and nonces from
// a long-term MLS exporter secret (spec §4.4).
package ratchet

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/rodrigo-weigert/meu-chapeu/internal/gatewayproto"
)

const (
	keyLength   = 16
	nonceLength = 12
	// nonceTrailer is how many trailing bytes of the 12-byte expanded
	// nonce material become the transmitted nonce (spec §4.4: "last 4
	// bytes").
	nonceTrailer = 4
)

// kdfLabel serializes the MLS-style KDFLabel structure used as the
// HKDF-Expand `info` parameter (spec §4.4):
//
//	length  u16 BE
//	label   Vector("MLS 1.0 " || ascii_label)
//	context Vector(big-endian u32 generation)
func kdfLabel(length uint16, label string, generation uint32) ([]byte, error) {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, length)

	labelBytes := append([]byte("MLS 1.0 "), []byte(label)...)
	labelVec, err := gatewayproto.EncodeVector(labelBytes)
	if err != nil {
		return nil, err
	}
	out = append(out, labelVec...)

	ctx := make([]byte, 4)
	binary.BigEndian.PutUint32(ctx, generation)
	ctxVec, err := gatewayproto.EncodeVector(ctx)
	if err != nil {
		return nil, err
	}
	out = append(out, ctxVec...)
	return out, nil
}

func expand(secret []byte, info []byte, length int) ([]byte, error) {
	r := hkdf.Expand(sha256.New, secret, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ratchet derives per-generation keys/nonces from a fixed 32-byte base
// secret. Implementations may cache a single generation (spec §4.4
// allows it) but the derivation must be exact for any generation.
type Ratchet struct {
	secret []byte
}

// New wraps a base secret (typically the MLS exporter secret for the
// current epoch) in a Ratchet.
func New(secret []byte) *Ratchet {
	return &Ratchet{secret: secret}
}

// Key derives the 16-byte AES key for generation g:
// HKDF-Expand(S, KDFLabel{16, "key", g}, 16).
func (r *Ratchet) Key(generation uint32) ([]byte, error) {
	info, err := kdfLabel(keyLength, "key", generation)
	if err != nil {
		return nil, err
	}
	return expand(r.secret, info, keyLength)
}

// Nonce derives the 4-byte nonce for generation g: the last 4 bytes of
// HKDF-Expand(S, KDFLabel{12, "nonce", g}, 12).
func (r *Ratchet) Nonce(generation uint32) (uint32, error) {
	info, err := kdfLabel(nonceLength, "nonce", generation)
	if err != nil {
		return 0, err
	}
	material, err := expand(r.secret, info, nonceLength)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(material[nonceLength-nonceTrailer:]), nil
}

// MediaKey is a single generation's exported key and nonce.
type MediaKey struct {
	Key   []byte
	Nonce uint32
}

// Get derives both the key and nonce for a generation in one call.
func (r *Ratchet) Get(generation uint32) (MediaKey, error) {
	key, err := r.Key(generation)
	if err != nil {
		return MediaKey{}, err
	}
	nonce, err := r.Nonce(generation)
	if err != nil {
		return MediaKey{}, err
	}
	return MediaKey{Key: key, Nonce: nonce}, nil
}
