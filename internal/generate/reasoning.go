package generate

import (
	"regexp"
	"strings"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes a model's reasoning trace from its output. When an
// end marker is present only the text after the last one is kept; any
// remaining complete blocks are dropped and the result is trimmed.
func StripReasoning(text string) string {
	if i := strings.LastIndex(text, thinkClose); i >= 0 {
		text = text[i+len(thinkClose):]
	}
	text = thinkBlockRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// HasReasoning reports whether text carries a reasoning marker.
func HasReasoning(text string) bool {
	return strings.Contains(text, thinkOpen) || strings.Contains(text, thinkClose)
}
