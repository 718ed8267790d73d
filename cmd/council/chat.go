package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/zulandar/council/internal/council"
	"github.com/zulandar/council/internal/generate"
	"github.com/zulandar/council/internal/termui"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

func newChatCmd(opts *rootOpts) *cobra.Command {
	var (
		profile string
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Consult the council in the terminal",
		Long: `Starts an interactive session. On a terminal a full-screen chat is shown;
with --plain, or when input is piped, each line is one submission.

Commands inside the chat: /reset, /profile <text>, /transcript, /quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, profile, plain)
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "subject personality profile (overrides config)")
	cmd.Flags().BoolVar(&plain, "plain", false, "line-oriented mode without the full-screen UI")
	return cmd
}

func runChat(cmd *cobra.Command, opts *rootOpts, profile string, plain bool) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if profile != "" {
		cfg.Profile = profile
	}

	out := cmd.OutOrStdout()
	r := termui.NewRenderer(out)
	fullScreen := !plain && r.Interactive() && isTerminal(cmd.InOrStdin())

	// Log lines would tear the full-screen UI.
	logger := opts.newLogger(cmd.ErrOrStderr(), zapcore.WarnLevel)
	if fullScreen && !opts.verbose {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	gen, err := generate.New(ctx, cfg.Generation, logger)
	if err != nil {
		return err
	}
	ctrl, err := council.NewController(controllerOptions(cfg, gen, logger))
	if err != nil {
		return err
	}

	arc, closeArchive, err := openArchive(cfg, logger)
	if err != nil {
		return err
	}
	defer closeArchive()
	if arc != nil {
		detach, err := arc.Attach(ctrl, "cli", uuid.NewString())
		if err != nil {
			logger.Warn("archive attach failed", zap.Error(err))
		} else {
			defer detach()
		}
	}

	if !fullScreen {
		return termui.RunPlain(ctx, ctrl, r, cmd.InOrStdin(), out)
	}

	p := tea.NewProgram(
		termui.NewChat(ctx, ctrl, r),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(out),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
