package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds everything the binaries read from the environment. No
// business logic should depend on raw environment variables.
type Config struct {
	Server ServerConfig
	Call   CallConfig
	ICE    ICEConfig
}

type ServerConfig struct {
	// Addr is the listen address of the relay server, e.g. ":8080".
	Addr string
	// URL is the ws endpoint peers dial, e.g. "ws://localhost:8080/ws".
	URL string
	// AllowedOrigins gates websocket upgrades by the Origin header.
	// Empty allows any origin, the dev default.
	AllowedOrigins []string
}

type CallConfig struct {
	RingingTimeout    time.Duration
	ConnectingTimeout time.Duration
	TerminalGrace     time.Duration
}

type ICEConfig struct {
	// Servers are STUN/TURN URLs handed to the transport.
	Servers []string
}

func Load() (Config, error) {
	c := Config{
		Server: ServerConfig{
			Addr:           getEnv("SONA_ADDR", ":8080"),
			URL:            getEnv("SONA_SERVER_URL", "ws://localhost:8080/ws"),
			AllowedOrigins: splitList(getEnv("SONA_ALLOWED_ORIGINS", "")),
		},
		ICE: ICEConfig{
			Servers: splitList(getEnv("SONA_ICE_SERVERS", "stun:stun.l.google.com:19302")),
		},
	}

	var err error
	if c.Call.RingingTimeout, err = getDuration("SONA_RINGING_TIMEOUT", 45*time.Second); err != nil {
		return Config{}, err
	}
	if c.Call.ConnectingTimeout, err = getDuration("SONA_CONNECTING_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if c.Call.TerminalGrace, err = getDuration("SONA_TERMINAL_GRACE", 2*time.Second); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
