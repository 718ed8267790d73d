package council

import (
	"context"
	"strings"

	"github.com/zulandar/council/internal/generate"
	"go.uber.org/zap"
)

const (
	// DefaultMinRounds is the number of questions asked before a completion
	// signal is honoured.
	DefaultMinRounds = 3
	// DefaultMaxRounds caps the investigation regardless of the signal.
	DefaultMaxRounds = 8
)

// Investigator runs the bounded interrogation loop.
type Investigator struct {
	asker       asker
	detector    CompletionDetector
	minRounds   int
	maxRounds   int
	temperature float64
	logger      *zap.Logger
}

// Open handles the first user input: it seeds the investigation context,
// asks question one and moves the session to INVESTIGATE.
func (inv *Investigator) Open(ctx context.Context, s *Session, complaint string) error {
	s.append(RoleUser, complaint)
	s.context = []generate.Turn{{Role: generate.RoleUser, Content: seedTurn(complaint, s.profile)}}

	r := inv.asker.ask(ctx, openingInstruction(), s.InvestigationContext(), inv.temperature)
	inv.askQuestion(s, r)
	return s.advance(StageInvestigate)
}

// Answer handles one user reply during INVESTIGATE. It reports whether the
// investigation concluded, in which case the session is now in COUNCIL.
func (inv *Investigator) Answer(ctx context.Context, s *Session, input string) (bool, error) {
	s.append(RoleUser, input)
	s.addContext(generate.RoleUser, input)

	instruction := decisionInstruction()
	if s.round < inv.minRounds {
		instruction = forcedInstruction(s.round, inv.minRounds)
	}
	r := inv.asker.ask(ctx, instruction, s.InvestigationContext(), inv.temperature)

	if inv.shouldConclude(s, r) {
		return true, inv.conclude(ctx, s)
	}
	inv.askQuestion(s, r)
	return false, nil
}

// shouldConclude applies the round floor before looking at the response.
func (inv *Investigator) shouldConclude(s *Session, r reply) bool {
	if s.round < inv.minRounds {
		if !r.Failed && !r.Degraded && inv.detector.Signals(r.Text) {
			inv.logger.Debug("completion signal ignored below round floor",
				zap.Int("round", s.round), zap.Int("min_rounds", inv.minRounds))
		}
		return false
	}
	switch {
	case r.Degraded:
		inv.logger.Info("concluding investigation without a generation service", zap.Int("round", s.round))
		return true
	case !r.Failed && inv.detector.Signals(r.Text):
		return true
	case s.round >= inv.maxRounds:
		inv.logger.Info("investigation reached max rounds", zap.Int("round", s.round))
		return true
	}
	return false
}

// askQuestion displays the cleaned question and counts the round.
func (inv *Investigator) askQuestion(s *Session, r reply) {
	q := r.Text
	if !r.Failed && !r.Degraded {
		q = inv.detector.Strip(q)
	}
	if q == "" {
		q = fallbackQuestion
	}
	s.append(RoleInterrogator, q)
	s.addContext(generate.RoleAssistant, q)
	s.round++
}

// conclude announces the hand-off, produces the case summary and moves the
// session to COUNCIL.
func (inv *Investigator) conclude(ctx context.Context, s *Session) error {
	s.append(RoleInterrogator, handoffNotice)
	r := inv.asker.ask(ctx, summaryInstruction(), s.InvestigationContext(), inv.temperature)
	summary := r.Text
	if strings.TrimSpace(summary) == "" {
		inv.logger.Warn("empty case summary, using fallback")
		summary = fallbackSummary
	}
	if err := s.setSummary(summary); err != nil {
		return err
	}
	inv.logger.Info("investigation concluded", zap.Int("rounds", s.round))
	return s.advance(StageCouncil)
}
