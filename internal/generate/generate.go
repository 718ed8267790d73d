// Package generate talks to the text-generation services that voice the
// council. Every backend satisfies Generator; callers decide what to do with
// failures.
package generate

import (
	"context"
	"errors"
)

// Role tags one turn of a conversation history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged entry of the history sent with a request.
type Turn struct {
	Role    Role
	Content string
}

// Generator produces one completion for a system instruction and an ordered
// history. A failure is reported as an error, never as text.
type Generator interface {
	Generate(ctx context.Context, system string, history []Turn, temperature float64) (string, error)
}

// ErrUnavailable is returned by backends that have no usable service
// configured (for example, a missing API key).
var ErrUnavailable = errors.New("generate: service not configured")

// Unavailable is the backend used when no service is configured. Every call
// fails with ErrUnavailable.
type Unavailable struct{}

// Generate implements Generator.
func (Unavailable) Generate(context.Context, string, []Turn, float64) (string, error) {
	return "", ErrUnavailable
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, system string, history []Turn, temperature float64) (string, error)

// Generate implements Generator.
func (f Func) Generate(ctx context.Context, system string, history []Turn, temperature float64) (string, error) {
	return f(ctx, system, history, temperature)
}
