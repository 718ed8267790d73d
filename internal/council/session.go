package council

import (
	"errors"
	"fmt"

	"github.com/zulandar/council/internal/generate"
)

// DefaultProfile is the subject profile used when none is configured.
const DefaultProfile = "INFP"

var (
	// ErrSummarySet is returned when a case summary is written twice.
	ErrSummarySet = errors.New("council: case summary already recorded")
	// ErrOpinionSet is returned when a persona is asked to speak twice.
	ErrOpinionSet = errors.New("council: opinion already recorded")
)

// Session is the root aggregate of one advice session. It has a single
// writer: the Controller that owns it.
type Session struct {
	stage          Stage
	transcript     Transcript
	round          int
	context        []generate.Turn
	summary        string
	opinions       map[PersonaID]string
	profile        string
	defaultProfile string

	emit func(Event)
}

// NewSession returns a session in INIT with the given default profile.
func NewSession(profile string) *Session {
	if profile == "" {
		profile = DefaultProfile
	}
	return &Session{
		opinions:       make(map[PersonaID]string),
		profile:        profile,
		defaultProfile: profile,
	}
}

func (s *Session) Stage() Stage        { return s.stage }
func (s *Session) Round() int          { return s.round }
func (s *Session) Summary() string     { return s.summary }
func (s *Session) Profile() string     { return s.profile }
func (s *Session) Messages() []Message { return s.transcript.All() }

// InvestigationContext returns a copy of the interrogation sub-dialogue.
func (s *Session) InvestigationContext() []generate.Turn {
	out := make([]generate.Turn, len(s.context))
	copy(out, s.context)
	return out
}

// Opinions returns the recorded opinions in canonical persona order.
func (s *Session) Opinions() []Opinion {
	var out []Opinion
	for _, p := range personas {
		if text, ok := s.opinions[p.ID]; ok {
			out = append(out, Opinion{Persona: p.ID, Text: text})
		}
	}
	return out
}

// Opinion returns one persona's opinion.
func (s *Session) Opinion(id PersonaID) (string, bool) {
	text, ok := s.opinions[id]
	return text, ok
}

// append writes a transcript message and notifies observers.
func (s *Session) append(role Role, content string) {
	m := s.transcript.Append(role, content)
	if s.emit != nil {
		s.emit(Event{Kind: EventMessage, Message: m, Sequence: s.transcript.Len(), Stage: s.stage})
	}
}

func (s *Session) addContext(role generate.Role, content string) {
	s.context = append(s.context, generate.Turn{Role: role, Content: content})
}

// advance moves to the next stage, refusing anything but the immediate
// successor.
func (s *Session) advance(to Stage) error {
	if !canAdvance(s.stage, to) {
		return fmt.Errorf("council: illegal transition %s -> %s", s.stage, to)
	}
	s.stage = to
	if s.emit != nil {
		s.emit(Event{Kind: EventStage, Stage: to, Profile: s.profile, Summary: s.summary})
	}
	return nil
}

func (s *Session) setSummary(text string) error {
	if s.summary != "" {
		return ErrSummarySet
	}
	s.summary = text
	return nil
}

func (s *Session) recordOpinion(id PersonaID, text string) error {
	if _, ok := s.opinions[id]; ok {
		return fmt.Errorf("%w: %s", ErrOpinionSet, id)
	}
	s.opinions[id] = text
	return nil
}

// reset returns every field to its initial value.
func (s *Session) reset() {
	s.stage = StageInit
	s.transcript.clear()
	s.round = 0
	s.context = nil
	s.summary = ""
	s.opinions = make(map[PersonaID]string)
	s.profile = s.defaultProfile
	if s.emit != nil {
		s.emit(Event{Kind: EventReset, Stage: StageInit, Profile: s.profile})
	}
}
