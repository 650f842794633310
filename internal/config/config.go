package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
)

type Config struct {
	// RelayAddr is the listen address of the relay server.
	RelayAddr string
	// RelayURL is the relay a call peer connects to.
	RelayURL       string
	ConversationID string
	UserID         string
	DisplayName    string
	STUNServers    []string
	RingTimeout    time.Duration
	LogLevel       zerolog.Level
	Origin         string
	MetricsAddr    string
}

// Load reads an optional .env file from the working directory and then the
// process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the process environment only.
func FromEnv() *Config {
	return &Config{
		RelayAddr:      getEnv("YACALL_RELAY_ADDR", ":8080"),
		RelayURL:       getEnv("YACALL_RELAY_URL", "ws://localhost:8080/ws"),
		ConversationID: getEnv("YACALL_CONVERSATION_ID", ""),
		UserID:         getEnv("YACALL_USER_ID", ""),
		DisplayName:    getEnv("YACALL_DISPLAY_NAME", ""),
		STUNServers:    ParseList(getEnv("YACALL_STUN_SERVERS", "")),
		RingTimeout:    cast.ToDuration(getEnv("YACALL_RING_TIMEOUT", "0s")),
		LogLevel:       parseLevel(getEnv("YACALL_LOG_LEVEL", "info")),
		Origin:         getEnv("YACALL_ORIGIN", ""),
		MetricsAddr:    getEnv("YACALL_METRICS_ADDR", ""),
	}
}

// ParseList splits a comma separated value, dropping blanks.
func ParseList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseLevel(v string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(v))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
