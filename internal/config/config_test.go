package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("API_VERSION")
	os.Unsetenv("API_ENCODING")
	os.Unsetenv("API_URL")
	os.Unsetenv("IDLE_TIMEOUT")

	c := Load()

	if c.API.Version != "v10" {
		t.Fatalf("expected default api version v10, got %q", c.API.Version)
	}
	if c.API.Encoding != "json" {
		t.Fatalf("expected default encoding json, got %q", c.API.Encoding)
	}
	if c.IdleTimeoutSeconds != 300 {
		t.Fatalf("expected default idle timeout 300, got %d", c.IdleTimeoutSeconds)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	os.Setenv("IDLE_TIMEOUT", "45")
	defer os.Unsetenv("IDLE_TIMEOUT")

	c := Load()

	if c.IdleTimeoutSeconds != 45 {
		t.Fatalf("expected overridden idle timeout 45, got %d", c.IdleTimeoutSeconds)
	}
}
