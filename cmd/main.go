package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/drewfead/lovemovie/internal/root"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd, err := root.Root(ctx)
	if err != nil {
		slog.Error("failed to create root command", "error", err)
		os.Exit(137)
	}

	if err := rootCmd.Run(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
