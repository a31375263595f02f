package main

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/spinup/spinup/cmd/spinup/commands"
	"github.com/spinup/spinup/pkg/launch"
	"github.com/spinup/spinup/pkg/tempfiles"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// A .env next to the binary is a convenience, not a requirement.
	_ = godotenv.Load()

	setupLogging()

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One registry for the whole process: every credential artifact any
	// command stages gets scrubbed on normal exit and on interrupt.
	registry := tempfiles.NewRegistry()
	defer registry.Cleanup()
	registry.InstallTrap(func(sig os.Signal) {
		log.Info().Str("signal", sig.String()).Msg("Interrupted, cleaning up...")
		cancel()
	}, os.Interrupt, syscall.SIGTERM)

	err := commands.Execute(ctx, registry, Version, Commit, BuildDate)
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
	}
	registry.Cleanup()
	os.Exit(exitCode(ctx, err))
}

// exitCode maps the final error to a process exit code: 0 success,
// 130 interrupted, 255 SSH-level failure, 1 anything else.
func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return 130
	}
	if launch.IsUnreachable(err) {
		return 255
	}
	return 1
}

// setupLogging configures zerolog for structured logging
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
