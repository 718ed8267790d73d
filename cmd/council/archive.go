package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/council/internal/archive"
	"github.com/zulandar/council/internal/council"
	"github.com/zulandar/council/internal/termui"
	"go.uber.org/zap/zapcore"
)

func newArchiveCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse archived sessions",
	}

	cmd.AddCommand(newArchiveListCmd(opts))
	cmd.AddCommand(newArchiveShowCmd(opts))
	return cmd
}

func newArchiveListCmd(opts *rootOpts) *cobra.Command {
	var (
		surface string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchiveList(cmd, opts, surface, limit)
		},
	}

	cmd.Flags().StringVar(&surface, "surface", "", "filter by surface (cli, http, slack, discord)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list")
	return cmd
}

func newArchiveShowCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print an archived transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			return runArchiveShow(cmd, opts, uint(id))
		},
	}
}

// requireArchive opens the archive, failing when it is disabled.
func requireArchive(cmd *cobra.Command, opts *rootOpts) (*archive.Archive, func(), error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Archive.Enabled {
		return nil, nil, fmt.Errorf("archive is disabled (set archive.enabled in %s)", opts.configPath)
	}
	return openArchive(cfg, opts.newLogger(cmd.ErrOrStderr(), zapcore.WarnLevel))
}

func runArchiveList(cmd *cobra.Command, opts *rootOpts, surface string, limit int) error {
	arc, closeArchive, err := requireArchive(cmd, opts)
	if err != nil {
		return err
	}
	defer closeArchive()

	rows, err := arc.List(cmd.Context(), archive.ListOpts{Surface: surface, Limit: limit})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No archived sessions.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSURFACE\tPROFILE\tSTAGE\tMESSAGES\tSTARTED\tSUMMARY")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Surface, r.Profile, r.Stage, r.MessageCount,
			r.CreatedAt.Format("2006-01-02 15:04"), oneLine(r.Summary, 50))
	}
	return w.Flush()
}

func runArchiveShow(cmd *cobra.Command, opts *rootOpts, id uint) error {
	arc, closeArchive, err := requireArchive(cmd, opts)
	if err != nil {
		return err
	}
	defer closeArchive()

	sess, err := arc.Transcript(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	r := termui.NewRenderer(out)
	fmt.Fprintf(out, "Session %d · %s/%s · profile %s · %s\n\n", sess.ID, sess.Surface, sess.Key, sess.Profile, sess.Stage)
	if sess.Summary != "" {
		fmt.Fprintf(out, "%s\n%s\n\n", r.Notice("Case summary:"), sess.Summary)
	}
	for _, m := range sess.Messages {
		fmt.Fprintf(out, "%s\n\n", r.Message(council.Message{Role: council.Role(m.Role), Content: m.Content}))
	}
	return nil
}

// oneLine flattens s and truncates it to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
