// Package termui renders council transcripts for the terminal and hosts the
// interactive chat client.
package termui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/zulandar/council/internal/council"
	"golang.org/x/term"
)

const (
	defaultWidth = 80
	minWidth     = 30
)

// Renderer styles transcript messages. Colour follows the output: a
// renderer over a pipe or buffer produces plain text.
type Renderer struct {
	lg          *lipgloss.Renderer
	width       int
	interactive bool
}

// NewRenderer creates a Renderer for w. When w is a terminal its width is
// used for wrapping; otherwise the default width applies.
func NewRenderer(w io.Writer) *Renderer {
	r := &Renderer{lg: lipgloss.NewRenderer(w), width: defaultWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.interactive = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			r.SetWidth(cols)
		}
	}
	return r
}

// Interactive reports whether the renderer writes to a terminal.
func (r *Renderer) Interactive() bool { return r.interactive }

// Width returns the wrap width.
func (r *Renderer) Width() int { return r.width }

// SetWidth changes the wrap width, clamped to a usable minimum.
func (r *Renderer) SetWidth(w int) {
	if w < minWidth {
		w = minWidth
	}
	r.width = w
}

// Header renders the "icon TITLE" line for role.
func (r *Renderer) Header(role council.Role) string {
	d := council.DisplayFor(role)
	title := d.Title
	if d.Icon != "" {
		title = d.Icon + " " + title
	}
	return r.lg.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(d.Color)).
		Render(title)
}

// Message renders one transcript entry. Verdicts get a card.
func (r *Renderer) Message(m council.Message) string {
	if m.Role == council.RoleSynthesizer {
		return r.Verdict(m.Content)
	}
	body := r.lg.NewStyle().
		Width(r.width - 2).
		PaddingLeft(2).
		Render(strings.TrimSpace(m.Content))
	return r.Header(m.Role) + "\n" + body
}

// Verdict renders the verdict card: a gold rounded border around the
// synthesizer's title and text.
func (r *Renderer) Verdict(text string) string {
	head := r.Header(council.RoleSynthesizer)
	body := r.lg.NewStyle().Render(strings.TrimSpace(text))
	return r.lg.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(council.VerdictColor)).
		Padding(0, 1).
		Width(r.width - 2).
		Render(head + "\n\n" + body)
}

// Stage renders a divider announcing a stage change.
func (r *Renderer) Stage(stage council.Stage) string {
	return r.Notice(fmt.Sprintf("── %s ──", stageLabel(stage)))
}

// Notice renders dim status text.
func (r *Renderer) Notice(text string) string {
	return r.lg.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(text)
}

// Error renders an error line.
func (r *Renderer) Error(err error) string {
	return r.lg.NewStyle().
		Foreground(lipgloss.Color("#FF6B6B")).
		Bold(true).
		Render("⚠ " + err.Error())
}

// Transcript renders every message, separated by blank lines.
func (r *Renderer) Transcript(msgs []council.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, r.Message(m))
	}
	return strings.Join(parts, "\n\n")
}

func stageLabel(s council.Stage) string {
	switch s {
	case council.StageInit:
		return "Tell the council what troubles you"
	case council.StageInvestigate:
		return "The Hermit investigates"
	case council.StageCouncil:
		return "The council convenes"
	case council.StageVerdict:
		return "The wheel turns"
	case council.StageFollowUp:
		return "Ask a follow-up question"
	default:
		return s.String()
	}
}
