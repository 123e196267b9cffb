// Package logger configures the global zerolog logger for the binaries.
package logger

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

var (
	debug = flag.Bool("debug", false, "sets log level to debug")
	trace = flag.Bool("trace", false, "sets log level to trace")
	info  = flag.Bool("info", false, "sets log level to info (default)")
)

// LevelFor maps an ENVIRONMENT value to the default log level.
func LevelFor(environment string) zerolog.Level {
	switch strings.ToLower(environment) {
	case "dev", "test":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

func initLogger() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Caller().Logger()

	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Fatal().Err(err).Msg("Error loading .env file!")
		}
		log.Debug().Msg("No .env file found, using process environment")
	}

	if !flag.Parsed() {
		flag.Parse()
	}

	environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if environment == "" {
		environment = "prod"
	}

	logLevel := LevelFor(environment)
	switch environment {
	case "dev", "test", "prod", "production":
	default:
		log.Warn().Str("environment", environment).Msg("Unknown environment - defaulting to production log level (info and above)")
	}

	if *debug {
		logLevel = zerolog.DebugLevel
		log.Info().Msg("Debug flag detected - overriding environment log level")
	} else if *trace {
		logLevel = zerolog.TraceLevel
		log.Info().Msg("Trace flag detected - overriding environment log level")
	} else if *info {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)
	log.Info().Str("environment", environment).Str("level", logLevel.String()).Msg("Logger initialised")
}

// Init sets up the global logger from the environment and command line
// flags. Binaries that declare their own flags must do so before calling
// Init, since Init parses the flag set.
//
//	logger.Init() <- first thing in main()
//
// Then, `go run ./cmd/server --debug`
func Init() {
	initLogger()
}
