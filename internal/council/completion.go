package council

import (
	"fmt"
	"regexp"
	"strings"
)

// CompletionToken is the sentinel the interrogator emits once it has heard
// enough.
const CompletionToken = "[ENOUGH]"

// MatchMode selects how strictly the completion token is recognised.
type MatchMode string

const (
	// MatchContains accepts the token anywhere in the response, with or
	// without brackets, including full-width brackets.
	MatchContains MatchMode = "contains"
	// MatchExact accepts only a response consisting of the token alone.
	MatchExact MatchMode = "exact"
)

var (
	tokenRe      = regexp.MustCompile(`[\[【]?ENOUGH[\]】]?`)
	exactTokenRe = regexp.MustCompile(`^[\[【]?ENOUGH[\]】]?$`)
)

// CompletionDetector decides whether an interrogator response signals that
// investigation may end.
type CompletionDetector struct {
	Mode MatchMode
}

// ParseMatchMode validates a configured match mode name.
func ParseMatchMode(name string) (MatchMode, error) {
	switch MatchMode(name) {
	case MatchContains, MatchExact:
		return MatchMode(name), nil
	case "":
		return MatchContains, nil
	}
	return "", fmt.Errorf("council: unknown completion match %q", name)
}

// Signals reports whether text carries the completion token.
func (d CompletionDetector) Signals(text string) bool {
	if d.Mode == MatchExact {
		return exactTokenRe.MatchString(strings.TrimSpace(text))
	}
	return tokenRe.MatchString(text)
}

// Strip removes every token occurrence so the rest can be shown as a
// question.
func (d CompletionDetector) Strip(text string) string {
	return strings.TrimSpace(tokenRe.ReplaceAllString(text, ""))
}
