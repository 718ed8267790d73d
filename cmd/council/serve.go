package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/council/internal/dashboard"
	"github.com/zulandar/council/internal/generate"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOpts) *cobra.Command {
	var (
		port          int
		withTelegraph bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the council over HTTP",
		Long: `Starts the JSON API with a Server-Sent Events stream per session.
With --with-telegraph the chat bridge runs in the same process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, port, withTelegraph)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().BoolVar(&withTelegraph, "with-telegraph", false, "also run the chat bridge")
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOpts, port int, withTelegraph bool) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.HTTP.Port = port
	}
	out := cmd.OutOrStdout()
	logger := opts.newLogger(cmd.ErrOrStderr(), zapcore.InfoLevel)
	defer logger.Sync()

	ctx, cancel := signalContext(out)
	defer cancel()

	gen, err := generate.New(ctx, cfg.Generation, logger)
	if err != nil {
		return err
	}
	arc, closeArchive, err := openArchive(cfg, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	registry, err := newRegistry(cfg, gen, logger.Named("http"))
	if err != nil {
		return err
	}
	srv, err := dashboard.New(dashboard.Opts{
		Registry:    registry,
		Archive:     arc,
		Logger:      logger,
		IdleTimeout: time.Duration(cfg.HTTP.IdleTimeoutMin) * time.Minute,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx, cfg.HTTP.Port, out)
	})

	if withTelegraph {
		daemon, err := newTelegraphDaemon(cfg, gen, arc, logger, out)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		g.Go(func() error {
			// The bridge stopping on its own takes the HTTP server down too.
			defer cancel()
			return daemon.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("serve stopped", zap.Error(err))
		return err
	}
	return nil
}
