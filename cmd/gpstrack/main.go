package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/gpstrack/cmd/gpstrack/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	config, err := app.NewConfigFromCLI(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration: %s", err.Error()))
		os.Exit(1)
	}

	logLevel.Set(config.Level())

	if config.Settings.LogFile != "" {
		f, err := os.OpenFile(config.Settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to open log file: %s", err.Error()), slog.String("path", config.Settings.LogFile))
			os.Exit(1)
		}
		defer f.Close()

		logger = slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, f), &slog.HandlerOptions{Level: &logLevel}))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger, app.IO{In: os.Stdin, Out: os.Stdout}); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
