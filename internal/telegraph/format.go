package telegraph

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/council/internal/council"
)

// Color constants for notices that are not transcript messages.
const (
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
)

// maxMessageLen is the longest text a single outbound message may carry
// (the Discord limit; Slack accepts more).
const maxMessageLen = 2000

// FormatMessage renders one transcript message for chat. Synthesizer
// messages become gold cards; every other role is a text message headed by
// the role's tarot title. Long text is split into several messages.
func FormatMessage(m council.Message) []OutboundMessage {
	d := council.DisplayFor(m.Role)
	if m.Role == council.RoleSynthesizer {
		return []OutboundMessage{{
			Cards: []Card{{
				Title: strings.TrimSpace(d.Icon + " " + d.Title),
				Body:  m.Content,
				Color: d.Color,
			}},
		}}
	}

	header := fmt.Sprintf("**%s**", d.Title)
	if d.Icon != "" {
		header = d.Icon + " " + header
	}
	var out []OutboundMessage
	for _, chunk := range chunkMessage(header+"\n"+m.Content, maxMessageLen) {
		out = append(out, OutboundMessage{Text: chunk})
	}
	return out
}

// FormatStatus renders a session snapshot for the status command.
func FormatStatus(snap council.Snapshot, live int) string {
	var b strings.Builder
	b.WriteString("**Council Status**\n")
	fmt.Fprintf(&b, "Stage: %s | Round: %d | Profile: %s\n", snap.Stage, snap.Round, snap.Profile)
	if len(snap.Opinions) > 0 {
		fmt.Fprintf(&b, "Voices heard: %d/%d\n", len(snap.Opinions), len(council.Personas()))
	}
	fmt.Fprintf(&b, "Messages: %d | Live sessions: %d\n", len(snap.Transcript), live)
	return b.String()
}

// chunkMessage splits text into chunks of at most maxLen bytes.
// It prefers breaking at newlines and never splits a UTF-8 sequence.
func chunkMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = maxMessageLen
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		// Look for a newline in the second half of the chunk to break at.
		chunk := text[:maxLen]
		breakAt := -1
		half := maxLen / 2
		for i := maxLen - 1; i >= half; i-- {
			if chunk[i] == '\n' {
				breakAt = i
				break
			}
		}

		if breakAt >= 0 {
			chunks = append(chunks, text[:breakAt])
			text = text[breakAt+1:] // skip the newline
			continue
		}

		cut := maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}
