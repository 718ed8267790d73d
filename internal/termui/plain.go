package termui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zulandar/council/internal/council"
)

// RunPlain runs a line-oriented session over in and out, for pipes and
// dumb terminals. Each line is one submission; transcript messages and stage
// changes are printed as they happen. It returns nil at end of input.
func RunPlain(ctx context.Context, ctrl *council.Controller, r *Renderer, in io.Reader, out io.Writer) error {
	unsubscribe := ctrl.Subscribe(func(e council.Event) {
		switch e.Kind {
		case council.EventMessage:
			if e.Message.Role != council.RoleUser {
				fmt.Fprintf(out, "%s\n\n", r.Message(e.Message))
			}
		case council.EventStage:
			fmt.Fprintf(out, "%s\n\n", r.Stage(e.Stage))
		}
	})
	defer unsubscribe()

	fmt.Fprintf(out, "%s\n\n", r.Stage(ctrl.Stage()))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, msg := plainCommand(ctrl, r, line)
			if msg != "" {
				fmt.Fprintf(out, "%s\n\n", msg)
			}
			if quit {
				return nil
			}
			continue
		}
		if err := ctrl.Submit(ctx, line); err != nil {
			if errors.Is(err, council.ErrBusy) || errors.Is(err, council.ErrEmptyInput) {
				fmt.Fprintf(out, "%s\n\n", r.Error(err))
				continue
			}
			return err
		}
		if err := ctrl.Drive(ctx); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// plainCommand runs a slash command and returns whether to quit and the
// rendered text to print.
func plainCommand(ctrl *council.Controller, r *Renderer, line string) (bool, string) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit":
		return true, ""
	case "/reset":
		ctrl.Reset()
		return false, r.Notice("The council has forgotten everything.")
	case "/transcript":
		snap := ctrl.Snapshot()
		if len(snap.Transcript) == 0 {
			return false, r.Notice("Nothing has been said yet.")
		}
		return false, r.Transcript(snap.Transcript)
	case "/profile":
		if len(fields) < 2 {
			return false, r.Notice("Current profile: " + ctrl.Profile())
		}
		if err := ctrl.SetProfile(commandArg(line, fields[0])); err != nil {
			return false, r.Error(err)
		}
		return false, r.Notice("Profile set to " + ctrl.Profile() + ".")
	default:
		return false, r.Notice(commandHelp)
	}
}

// commandArg returns the free text that follows the command word.
func commandArg(line, cmd string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd))
}
