package council

import (
	"context"
	"errors"

	"github.com/zulandar/council/internal/generate"
	"go.uber.org/zap"
)

// reply is the in-band result of one generation call. Failures never
// propagate; they become displayable text.
type reply struct {
	Text     string
	Degraded bool // no service configured; Text is Placeholder
	Failed   bool // the call errored; Text describes the error
}

// asker wraps a Generator with the session's failure policy.
type asker struct {
	gen    generate.Generator
	logger *zap.Logger
}

func (a asker) ask(ctx context.Context, system string, history []generate.Turn, temperature float64) reply {
	if a.gen == nil {
		return reply{Text: Placeholder, Degraded: true}
	}
	text, err := a.gen.Generate(ctx, system, history, temperature)
	switch {
	case errors.Is(err, generate.ErrUnavailable):
		return reply{Text: Placeholder, Degraded: true}
	case err != nil:
		a.logger.Warn("generation failed", zap.Error(err))
		return reply{Text: "Error: " + err.Error(), Failed: true}
	}
	if generate.HasReasoning(text) {
		a.logger.Debug("stripping reasoning trace", zap.Int("raw_len", len(text)))
	}
	return reply{Text: generate.StripReasoning(text)}
}
