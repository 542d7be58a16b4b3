package voicegateway

import (
	"context"
	"testing"
	"time"
)

func TestHeartbeatNonceInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		n := heartbeatNonce()
		if n < 1e12 || n >= 2e12 {
			t.Fatalf("nonce %d out of [1e12, 2e12) range", n)
		}
	}
}

func TestMediaKeySourceInactiveWithoutDave(t *testing.T) {
	c := New(Config{}, nil)
	key, nonce, active, err := c.MediaKeySource()()
	if err != nil {
		t.Fatal(err)
	}
	if active || key != nil || nonce != 0 {
		t.Fatalf("expected inactive zero-value result, got key=%v nonce=%d active=%v", key, nonce, active)
	}
}

func TestReadyBlocksUntilBothSignals(t *testing.T) {
	c := New(Config{}, nil)
	done := make(chan struct{})
	go func() {
		_ = c.Ready(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Ready returned before session_ready/dave_ready fired")
	case <-time.After(20 * time.Millisecond):
	}

	c.setSessionReady()
	c.setDaveReady()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Ready did not return after both signals fired")
	}
}
