package council

import (
	"context"

	"github.com/zulandar/council/internal/generate"
	"go.uber.org/zap"
)

// Council collects one opinion from each persona, one per step.
type Council struct {
	asker       asker
	temperature float64
	logger      *zap.Logger
}

// NextPending returns the first persona, in canonical order, that has not
// spoken yet.
func NextPending(s *Session) (Persona, bool) {
	for _, p := range personas {
		if _, ok := s.opinions[p.ID]; !ok {
			return p, true
		}
	}
	return Persona{}, false
}

// Step asks the next pending persona for its opinion. It reports done when
// every persona has spoken and nothing was asked.
func (c *Council) Step(ctx context.Context, s *Session) (bool, error) {
	p, ok := NextPending(s)
	if !ok {
		return true, nil
	}
	prompt := personaPrompt(s.summary, s.profile)
	r := c.asker.ask(ctx, p.Instruction, []generate.Turn{{Role: generate.RoleUser, Content: prompt}}, c.temperature)
	if err := s.recordOpinion(p.ID, r.Text); err != nil {
		return false, err
	}
	s.append(p.Role, r.Text)
	c.logger.Debug("persona spoke", zap.String("persona", string(p.ID)))
	return false, nil
}
