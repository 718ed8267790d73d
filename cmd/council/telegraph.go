package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/council/internal/archive"
	"github.com/zulandar/council/internal/config"
	"github.com/zulandar/council/internal/generate"
	"github.com/zulandar/council/internal/telegraph"
	discordadapter "github.com/zulandar/council/internal/telegraph/discord"
	slackadapter "github.com/zulandar/council/internal/telegraph/slack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newTelegraphCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "telegraph",
		Aliases: []string{"tg"},
		Short:   "Run the council in Slack or Discord",
		Long:    "Telegraph bridges council sessions to chat platforms. Each thread is its own session.",
	}

	cmd.AddCommand(newTelegraphStartCmd(opts))
	return cmd
}

func newTelegraphStartCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the Telegraph daemon",
		Long:  "Connects to the configured chat platform and answers mentions until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTelegraphStart(cmd, opts)
		},
	}
}

func runTelegraphStart(cmd *cobra.Command, opts *rootOpts) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Telegraph.Platform == "" {
		return fmt.Errorf("telegraph: no platform configured in %s (add telegraph.platform)", opts.configPath)
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

	daemon, err := newTelegraphDaemon(cfg, gen, arc, logger, out)
	if err != nil {
		return err
	}
	return daemon.Run(ctx)
}

// newTelegraphDaemon wires the platform adapter, a dedicated session
// registry and the optional archive into a Daemon.
func newTelegraphDaemon(cfg *config.Config, gen generate.Generator, arc *archive.Archive, logger *zap.Logger, out io.Writer) (*telegraph.Daemon, error) {
	adapter, err := createAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	registry, err := newRegistry(cfg, gen, logger.Named("telegraph"))
	if err != nil {
		return nil, err
	}
	daemonOpts := telegraph.DaemonOpts{
		Config:   cfg.Telegraph,
		Adapter:  adapter,
		Registry: registry,
		Logger:   logger,
		Out:      out,
	}
	// A nil *archive.Archive must not become a non-nil Recorder.
	if arc != nil {
		daemonOpts.Recorder = arc
	}
	return telegraph.NewDaemon(daemonOpts)
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config, logger *zap.Logger) (telegraph.Adapter, error) {
	switch cfg.Telegraph.Platform {
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Telegraph.Slack.AppToken,
			BotToken:  cfg.Telegraph.Slack.BotToken,
			ChannelID: cfg.Telegraph.Channel,
			Logger:    logger,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Telegraph.Discord.BotToken,
			ChannelID: cfg.Telegraph.Channel,
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("telegraph: unsupported platform %q", cfg.Telegraph.Platform)
	}
}
