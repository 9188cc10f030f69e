// Package logging configures the process-wide zerolog logger the same way
// across both services: unix timestamps, console writer on stderr.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global zerolog logger and returns it for callers that want
// to thread an explicit logger through constructors instead of reaching for
// the package-level one.
func Init(service string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Str("service", service).
		Logger()
	log.Logger = logger
	return logger
}
