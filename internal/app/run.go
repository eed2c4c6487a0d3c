package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codevault/codevault/logging"
)

// Run is the CLI entrypoint used by cmd/codevault. It returns an error
// instead of exiting so deferred cleanup runs.
func Run(args []string) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	a, err := New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error(context.Background(), "shutdown cleanup failed", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
