package termui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zulandar/council/internal/council"
)

// inputHeight is the number of lines reserved for the input box.
const inputHeight = 3

const commandHelp = "Commands: /reset, /profile <text>, /transcript, /quit"

// submittedMsg reports the end of a Submit call.
type submittedMsg struct {
	snap council.Snapshot
	err  error
}

// steppedMsg reports the end of one automatic step.
type steppedMsg struct {
	snap    council.Snapshot
	stepped bool
	err     error
}

// Chat is the bubbletea model of an interactive council session. User
// input is submitted to the controller and automatic stages are advanced
// one step at a time, so every persona appears as soon as it has spoken.
type Chat struct {
	ctx  context.Context
	ctrl *council.Controller
	r    *Renderer

	input textarea.Model
	view  viewport.Model
	spin  spinner.Model

	snap   council.Snapshot
	busy   bool
	notice string
	err    error
	ready  bool
}

// NewChat creates the chat model for ctrl.
func NewChat(ctx context.Context, ctrl *council.Controller, r *Renderer) *Chat {
	ta := textarea.New()
	ta.Placeholder = "What troubles you?"
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(council.VerdictColor))

	return &Chat{
		ctx:   ctx,
		ctrl:  ctrl,
		r:     r,
		input: ta,
		view:  viewport.New(r.Width(), 20),
		spin:  sp,
		snap:  ctrl.Snapshot(),
	}
}

// Init starts the cursor blinking.
func (c *Chat) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles one message.
func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.r.SetWidth(msg.Width)
		c.input.SetWidth(msg.Width)
		c.view.Width = msg.Width
		c.view.Height = max(3, msg.Height-inputHeight-2)
		c.ready = true
		c.refresh()
		return c, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return c, tea.Quit
		case tea.KeyEnter:
			return c.handleEnter()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			c.view, cmd = c.view.Update(msg)
			return c, cmd
		}

	case submittedMsg:
		c.snap = msg.snap
		if msg.err != nil {
			c.busy = false
			c.err = msg.err
			c.refresh()
			return c, nil
		}
		c.refresh()
		return c, c.advanceCmd()

	case steppedMsg:
		c.snap = msg.snap
		c.refresh()
		if msg.err != nil || !msg.stepped {
			c.busy = false
			c.err = msg.err
			return c, nil
		}
		return c, c.advanceCmd()

	case spinner.TickMsg:
		if !c.busy {
			return c, nil
		}
		var cmd tea.Cmd
		c.spin, cmd = c.spin.Update(msg)
		return c, cmd
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

// handleEnter submits the input box, or runs a slash command.
func (c *Chat) handleEnter() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(c.input.Value())
	if text == "" || c.busy {
		return c, nil
	}
	c.input.Reset()
	c.err = nil
	c.notice = ""

	if strings.HasPrefix(text, "/") {
		quit := c.runCommand(text)
		c.refresh()
		if quit {
			return c, tea.Quit
		}
		return c, nil
	}

	c.busy = true
	c.refresh()
	return c, tea.Batch(c.spin.Tick, c.submitCmd(text))
}

// runCommand executes a slash command and reports whether to quit.
func (c *Chat) runCommand(text string) bool {
	fields := strings.Fields(text)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit":
		return true
	case "/reset":
		c.ctrl.Reset()
		c.snap = c.ctrl.Snapshot()
		c.notice = "The council has forgotten everything."
	case "/profile":
		if len(fields) < 2 {
			c.notice = fmt.Sprintf("Current profile: %s", c.ctrl.Profile())
			return false
		}
		if err := c.ctrl.SetProfile(commandArg(text, fields[0])); err != nil {
			c.err = err
			return false
		}
		c.snap = c.ctrl.Snapshot()
		c.notice = fmt.Sprintf("Profile set to %s.", c.ctrl.Profile())
	case "/transcript":
		c.notice = fmt.Sprintf("%d messages so far. PgUp/PgDn to scroll.", len(c.snap.Transcript))
	default:
		c.notice = commandHelp
	}
	return false
}

func (c *Chat) submitCmd(text string) tea.Cmd {
	return func() tea.Msg {
		err := c.ctrl.Submit(c.ctx, text)
		return submittedMsg{snap: c.ctrl.Snapshot(), err: err}
	}
}

func (c *Chat) advanceCmd() tea.Cmd {
	return func() tea.Msg {
		stepped, err := c.ctrl.Advance(c.ctx)
		return steppedMsg{snap: c.ctrl.Snapshot(), stepped: stepped, err: err}
	}
}

// refresh re-renders the transcript into the viewport.
func (c *Chat) refresh() {
	content := c.r.Transcript(c.snap.Transcript)
	if content == "" {
		content = c.r.Stage(c.snap.Stage)
	}
	c.view.SetContent(content)
	c.view.GotoBottom()
}

// View renders the transcript, a status line and the input box.
func (c *Chat) View() string {
	if !c.ready {
		return "Summoning the council..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, c.view.View(), c.status(), c.input.View())
}

func (c *Chat) status() string {
	switch {
	case c.err != nil:
		return c.r.Error(c.err)
	case c.busy:
		return c.spin.View() + " " + c.r.Notice(busyLabel(c.snap.Stage))
	case c.notice != "":
		return c.r.Notice(c.notice)
	default:
		return c.r.Stage(c.snap.Stage)
	}
}

func busyLabel(s council.Stage) string {
	switch s {
	case council.StageCouncil:
		return "The council deliberates..."
	case council.StageVerdict:
		return "The wheel is turning..."
	default:
		return "The Hermit ponders..."
	}
}
