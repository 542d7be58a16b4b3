// Package config loads the process-wide gateway configuration from the
// environment, following the variable names fixed by spec §6.
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything needed to bring up the main gateway client.
type Config struct {
	API struct {
		Token         string
		Version       string
		Encoding      string
		URL           string
		ApplicationID string
	}
	IdleTimeoutSeconds int
}

// Load reads API_TOKEN, API_VERSION, API_ENCODING, API_URL,
// APPLICATION_ID and IDLE_TIMEOUT from the environment (a prior
// godotenv.Load in cmd/meuchapeu makes an --env file visible here too).
func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.version", "v10")
	v.SetDefault("api.encoding", "json")
	v.SetDefault("api.url", "https://discord.com/api")
	v.SetDefault("idle_timeout", 300)

	v.BindEnv("api.token", "API_TOKEN")
	v.BindEnv("api.version", "API_VERSION")
	v.BindEnv("api.encoding", "API_ENCODING")
	v.BindEnv("api.url", "API_URL")
	v.BindEnv("api.application_id", "APPLICATION_ID")
	v.BindEnv("idle_timeout", "IDLE_TIMEOUT")

	var c Config
	c.API.Token = v.GetString("api.token")
	c.API.Version = v.GetString("api.version")
	c.API.Encoding = v.GetString("api.encoding")
	c.API.URL = v.GetString("api.url")
	c.API.ApplicationID = v.GetString("api.application_id")
	c.IdleTimeoutSeconds = v.GetInt("idle_timeout")

	log.Printf("[config] loaded: api_url=%s api_version=%s idle_timeout=%ds", c.API.URL, c.API.Version, c.IdleTimeoutSeconds)
	return c
}
