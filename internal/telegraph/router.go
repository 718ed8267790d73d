package telegraph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// commandPrefix is the prefix that triggers command handling.
const commandPrefix = "!council"

// Router classifies inbound chat messages and routes them to the
// appropriate handler: the command handler for "!council" commands, the
// session manager for conversation, or ignore for bot/unaddressed messages.
type Router struct {
	sessions  *SessionManager
	commands  *CommandHandler
	adapter   Adapter
	botUserID string // the bot's own user ID (to filter self-messages)
	logger    *zap.Logger
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Sessions  *SessionManager
	Commands  *CommandHandler
	Adapter   Adapter
	BotUserID string // bot's user ID for self-message filtering
	Logger    *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("telegraph: router: session manager is required")
	}
	if opts.Commands == nil {
		return nil, fmt.Errorf("telegraph: router: command handler is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: router: adapter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		sessions:  opts.Sessions,
		commands:  opts.Commands,
		adapter:   opts.Adapter,
		botUserID: opts.BotUserID,
		logger:    logger,
	}, nil
}

// Handle classifies and routes a single inbound message. Routing paths:
//  1. Bot self-message → ignore
//  2. Command prefix "!council", or a mention followed by only a command → command handler
//  3. Thread with a live session → session manager
//  4. Message addressed to the bot → new session
//  5. Everything else → ignore
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	// 1. Filter bot self-messages.
	if r.isSelfMessage(msg) {
		return
	}

	text := stripMentions(msg.Text)
	threadID := resolveThreadID(msg.ChannelID, msg.ThreadID)
	log := r.logger.With(zap.String("channel", msg.ChannelID), zap.String("thread", threadID))
	log.Debug("recv", zap.String("user", msg.UserName), zap.String("text", truncate(text, 80)))

	// 2. Commands, either prefixed or a bare command word after a mention.
	if isCommand(text) {
		log.Debug("→ command")
		r.reply(ctx, msg.ChannelID, threadID, r.commands.Execute(msg.ChannelID, threadID, text))
		return
	}
	if cmd := extractMentionCommand(msg.Text); cmd != "" {
		log.Debug("→ mention-command", zap.String("command", cmd))
		r.reply(ctx, msg.ChannelID, threadID, r.commands.Execute(msg.ChannelID, threadID, commandPrefix+" "+cmd))
		return
	}

	// 3./4. Conversation.
	if r.sessions.HasSession(msg.ChannelID, threadID) || msg.Mentioned || isMention(msg.Text) {
		if text == "" {
			r.reply(ctx, msg.ChannelID, threadID, "Tell me what is troubling you.")
			return
		}
		log.Debug("→ session")
		if err := r.sessions.Route(ctx, msg.ChannelID, threadID, text); err != nil {
			log.Error("route to session", zap.Error(err))
			r.reply(ctx, msg.ChannelID, threadID, fmt.Sprintf("Error: %v", err))
		}
		return
	}

	// 5. Unaddressed message outside a session → ignore.
	log.Debug("→ ignore (no mention, no thread session)")
}

// resolveThreadID returns the effective thread ID for session lookups.
// For top-level channel messages (empty threadID), the channel ID is used
// as the thread key so that follow-up messages in the same channel can
// find the session even without an explicit thread.
func resolveThreadID(channelID, threadID string) string {
	if threadID == "" {
		return channelID
	}
	return threadID
}

// truncate returns s truncated to at most maxLen bytes with "..." appended
// if needed. The cut never splits a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func (r *Router) reply(ctx context.Context, channelID, threadID, text string) {
	if err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID: channelID,
		ThreadID:  threadID,
		Text:      text,
	}); err != nil {
		r.logger.Warn("send reply", zap.Error(err))
	}
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}

// isCommand returns true if the text starts with the command prefix.
func isCommand(text string) bool {
	return strings.HasPrefix(text, commandPrefix+" ") || text == commandPrefix
}

// mentionRe matches Slack <@U123> and Discord <@123> / <@!123> mentions.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

// stripMentions removes platform mention markup and trims the result.
func stripMentions(text string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
}

// isMention returns true if the text contains platform mention markup.
func isMention(text string) bool {
	return mentionRe.MatchString(text)
}

// knownCommands lists the words accepted as commands after a bare mention.
var knownCommands = map[string]bool{
	"help":    true,
	"reset":   true,
	"status":  true,
	"profile": true,
}

// extractMentionCommand checks if the message is a bot mention followed by
// nothing but a known command ("<@U1> status", "<@U1> profile INTJ").
// "profile" keeps the free text that follows it.
// Returns the command text without the mention, or empty string if not.
// Longer text is treated as conversation so "help me decide" opens a session.
func extractMentionCommand(text string) string {
	if !isMention(text) {
		return ""
	}
	fields := strings.Fields(stripMentions(text))
	if len(fields) == 0 || !knownCommands[strings.ToLower(fields[0])] {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	switch {
	case len(fields) == 1:
		return cmd
	case cmd == "profile":
		return cmd + " " + strings.Join(fields[1:], " ")
	}
	return ""
}
