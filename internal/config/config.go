// Package config loads ambient SDK defaults from a .env file (if present)
// and the process environment, mirroring the env vars the original SDK's
// decorator auto-init path reads.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults holds ambient configuration read from the environment.
type Defaults struct {
	AIMURL       string
	AgentName    string
	AutoRegister bool
	StrictMode   bool
}

// Load reads a .env file if present (errors are ignored, matching
// godotenv's typical "optional file" usage) then resolves defaults from
// the process environment.
func Load() Defaults {
	_ = godotenv.Load()

	return Defaults{
		AIMURL:       getEnvOr("AIM_URL", "http://localhost:8080"),
		AgentName:    os.Getenv("AIM_AGENT_NAME"),
		AutoRegister: getEnvBool("AIM_AUTO_REGISTER", true),
		StrictMode:   getEnvBool("AIM_STRICT_MODE", false),
	}
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
