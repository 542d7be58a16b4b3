package ratchet

import (
	"bytes"
	"testing"
)

func TestDeterministicAcrossGenerations(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	r := New(secret)

	mk0a, err := r.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	mk0b, err := r.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(mk0a.Key, mk0b.Key) || mk0a.Nonce != mk0b.Nonce {
		t.Fatal("derivation for the same generation must be deterministic")
	}

	mk1, err := r.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(mk0a.Key, mk1.Key) {
		t.Fatal("different generations must not derive the same key")
	}
	if len(mk0a.Key) != 16 {
		t.Fatalf("key length %d, want 16", len(mk0a.Key))
	}
}

func TestDifferentSecretsDiverge(t *testing.T) {
	a := New(bytes.Repeat([]byte{1}, 32))
	b := New(bytes.Repeat([]byte{2}, 32))

	ka, _ := a.Key(0)
	kb, _ := b.Key(0)
	if bytes.Equal(ka, kb) {
		t.Fatal("different secrets must derive different keys")
	}
}
