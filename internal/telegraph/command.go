package telegraph

import (
	"fmt"
	"strings"
)

// CommandHandler processes "!council" commands from chat.
type CommandHandler struct {
	sessions *SessionManager
}

// CommandHandlerOpts holds parameters for creating a CommandHandler.
type CommandHandlerOpts struct {
	Sessions *SessionManager
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(opts CommandHandlerOpts) (*CommandHandler, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("telegraph: command handler: session manager is required")
	}
	return &CommandHandler{sessions: opts.Sessions}, nil
}

// Execute parses and executes a "!council" command string for the given
// thread. Returns the response text to send back to the chat channel.
func (ch *CommandHandler) Execute(channelID, threadID, text string) string {
	args := parseCommand(text)
	if len(args) == 0 {
		return ch.helpText()
	}

	switch args[0] {
	case "help":
		return ch.helpText()
	case "reset":
		return ch.cmdReset(channelID, threadID)
	case "profile":
		return ch.cmdProfile(channelID, threadID, strings.Join(args[1:], " "))
	case "status":
		return ch.cmdStatus(channelID, threadID)
	default:
		return fmt.Sprintf("Unknown command: `%s`\n\n%s", args[0], ch.helpText())
	}
}

// parseCommand strips the "!council" prefix and splits the remaining text.
func parseCommand(text string) []string {
	text = strings.TrimSpace(text)
	if text == commandPrefix {
		return nil
	}
	text = strings.TrimPrefix(text, commandPrefix+" ")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return strings.Fields(text)
}

func (ch *CommandHandler) cmdReset(channelID, threadID string) string {
	if !ch.sessions.Reset(channelID, threadID) {
		return "No session in this thread. Mention me with your trouble to start one."
	}
	return "Session reset. Tell me what is troubling you."
}

// cmdProfile shows or sets the subject profile. The profile is free text,
// so everything after the command word is kept as written.
func (ch *CommandHandler) cmdProfile(channelID, threadID, profile string) string {
	if profile == "" {
		if snap, ok := ch.sessions.Snapshot(channelID, threadID); ok {
			return fmt.Sprintf("Profile: %s\nUsage: `%s profile <text>`", snap.Profile, commandPrefix)
		}
		return fmt.Sprintf("Usage: `%s profile <text>` (for example INFP, or \"anxious introvert, 34\")", commandPrefix)
	}
	if err := ch.sessions.SetProfile(channelID, threadID, profile); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Profile set to %s.", profile)
}

func (ch *CommandHandler) cmdStatus(channelID, threadID string) string {
	snap, ok := ch.sessions.Snapshot(channelID, threadID)
	if !ok {
		return fmt.Sprintf("No session in this thread. Live sessions: %d", ch.sessions.Len())
	}
	return FormatStatus(snap, ch.sessions.Len())
}

// helpText returns usage information for all commands.
func (ch *CommandHandler) helpText() string {
	return "**Inner Council Commands**\n" +
		"Mention me with what is troubling you to open a session in a thread.\n" +
		"`!council status` - Stage, round and profile of this thread's session\n" +
		"`!council profile <text>` - Describe yourself (e.g. INFP, or \"night owl, 34\")\n" +
		"`!council reset` - Discard this thread's session and start over\n" +
		"`!council help` - This message"
}
