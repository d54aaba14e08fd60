package internal

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,default=8080"`

	LogLevel       string `env:"LOG_LEVEL,default=info"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	// Live layer tuning.
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	SendRatePerSecond    float64       `env:"SEND_RATE_PER_SECOND,default=5"`
	SendBurst            int           `env:"SEND_BURST,default=10"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	GCInterval           time.Duration `env:"GC_INTERVAL,default=5m"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	// History pagination bounds.
	DefaultPageLimit int `env:"DEFAULT_PAGE_LIMIT,default=50"`
	MaxPageLimit     int `env:"MAX_PAGE_LIMIT,default=100"`

	// Recent messages retained by the /debug/activity view.
	ActivityWindow int `env:"ACTIVITY_WINDOW,default=256"`

	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
}

// Origins splits the ALLOWED_ORIGINS list. Empty means same-host only.
func (c Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
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

// NewLogger builds the process-wide slog logger from the configured level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
