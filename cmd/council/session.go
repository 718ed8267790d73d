package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/zulandar/council/internal/archive"
	"github.com/zulandar/council/internal/config"
	"github.com/zulandar/council/internal/council"
	"github.com/zulandar/council/internal/db"
	"github.com/zulandar/council/internal/generate"
	"go.uber.org/zap"
)

// controllerOptions maps the config onto controller options.
func controllerOptions(cfg *config.Config, gen generate.Generator, logger *zap.Logger) council.Options {
	return council.Options{
		Generator:          gen,
		Profile:            cfg.Profile,
		MinRounds:          cfg.Investigation.MinRounds,
		MaxRounds:          cfg.Investigation.MaxRounds,
		Completion:         council.MatchMode(cfg.Investigation.CompletionMatch),
		Temperature:        cfg.Generation.Temperature,
		VerdictTemperature: cfg.Generation.VerdictTemperature,
		Logger:             logger,
	}
}

// newRegistry builds a session registry whose controllers share gen.
func newRegistry(cfg *config.Config, gen generate.Generator, logger *zap.Logger) (*council.Registry, error) {
	return council.NewRegistry(council.RegistryOpts{
		New: func(key string) (*council.Controller, error) {
			return council.NewController(controllerOptions(cfg, gen, logger.With(zap.String("session", key))))
		},
		Logger: logger,
	})
}

// openArchive opens the transcript archive when it is enabled. The returned
// close function is always safe to call.
func openArchive(cfg *config.Config, logger *zap.Logger) (*archive.Archive, func(), error) {
	if !cfg.Archive.Enabled {
		return nil, func() {}, nil
	}
	gormDB, err := db.Open(cfg.Archive)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	arc, err := archive.New(archive.Opts{DB: gormDB, Logger: logger.Named("archive")})
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return arc, closeDB, nil
}

// archiveTarget describes the archive database for messages.
func archiveTarget(cfg config.ArchiveConfig) string {
	if cfg.Driver == "mysql" {
		return fmt.Sprintf("mysql %s:%d/%s", cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.Database)
	}
	return fmt.Sprintf("sqlite %s", cfg.Path)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
