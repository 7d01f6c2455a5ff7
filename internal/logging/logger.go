package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Fields map[string]interface{}

// Setup configures the global zerolog logger for the given environment.
// DEV gets a human readable console writer, everything else JSON.
func Setup(env string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if strings.EqualFold(env, "DEV") {
		level = zerolog.DebugLevel
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DefaultContextLogger = &log.Logger
	return log.Logger
}

func With(logger zerolog.Logger, fields Fields) zerolog.Logger {
	return logger.With().Fields(map[string]interface{}(fields)).Logger()
}
