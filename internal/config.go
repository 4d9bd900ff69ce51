package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host     string `env:"HOST,required=true"`
	Port     int    `env:"PORT,required=true"`
	LogLevel string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	// Per-session delivery channel capacity and the bound on any single
	// sink write before the session is torn down.
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,required=true"`

	HistoryLimit     int    `env:"HISTORY_LIMIT"`
	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,required=true"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,required=true"`

	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,required=true"`
	PongTimeout  time.Duration `env:"PONG_TIMEOUT,required=true"`

	GCInterval     time.Duration `env:"GC_INTERVAL,required=true"`
	ReportInterval time.Duration `env:"REPORT_INTERVAL,required=true"`
}

// DefaultHistoryLimit bounds welcome replays and private history when
// HISTORY_LIMIT is unset.
const DefaultHistoryLimit = 50

func (c Config) History() int {
	if c.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return c.HistoryLimit
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
