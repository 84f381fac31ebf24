package gologger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	l := NewLogger()
	zerolog.DefaultContextLogger = &l
}

// NewLogger returns a logger writing JSON lines to stdout. PRETTY=1 switches
// to the console writer, DEBUG=1 lowers the global level.
func NewLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if os.Getenv("PRETTY") == "1" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	return logger
}
