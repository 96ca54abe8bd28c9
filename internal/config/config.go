// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds the settings every process needs.  Each field corresponds
// to a required environment variable, except DBPass which may be empty.
type Config struct {
	Env          string // APP_ENV (dev, test, prod)
	Port         string // APP_PORT
	DBUser       string // DB_USER
	DBPass       string // DB_PASS
	DBHost       string // DB_HOST
	DBPort       string // DB_PORT
	DBName       string // DB_NAME
	JWTSecret    string // JWT_SECRET, shared with the identity provider
	AccessTTLMin int    // ACCESS_TOKEN_TTL_MIN
}

// Load reads the core configuration.  Missing or malformed required
// variables abort the process.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
	}
}

func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
