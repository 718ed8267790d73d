package council

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DefaultVerdictTemperature is the elevated sampling temperature used for
// the verdict.
const DefaultVerdictTemperature = 0.9

// warmthThreshold is the temperature above which the verdict instruction
// also asks for a warm tone.
const warmthThreshold = 0.8

var (
	// ErrVerdictDelivered is returned when a second verdict is requested.
	ErrVerdictDelivered = errors.New("council: verdict already delivered")
	// ErrCouncilIncomplete is returned when the verdict is requested before
	// every persona has spoken.
	ErrCouncilIncomplete = errors.New("council: not every persona has spoken")
)

// Synthesizer produces the single verdict of a session.
type Synthesizer struct {
	asker       asker
	temperature float64
	logger      *zap.Logger
}

// Synthesize writes the verdict into the transcript. History is empty; the
// case, profile and opinions travel inside the instruction.
func (v *Synthesizer) Synthesize(ctx context.Context, s *Session) error {
	if _, ok := s.transcript.LastByRole(RoleSynthesizer); ok {
		return ErrVerdictDelivered
	}
	opinions := s.Opinions()
	if len(opinions) != len(personas) {
		return fmt.Errorf("%w: %d of %d", ErrCouncilIncomplete, len(opinions), len(personas))
	}
	instruction := verdictInstruction(s.summary, s.profile, opinions, v.temperature > warmthThreshold)
	r := v.asker.ask(ctx, instruction, nil, v.temperature)
	s.append(RoleSynthesizer, r.Text)
	v.logger.Info("verdict delivered", zap.Float64("temperature", v.temperature))
	return nil
}
