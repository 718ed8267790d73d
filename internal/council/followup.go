package council

import "context"

// FollowUp answers open-ended questions after the verdict. Each call is
// independent and grounded only on the latest synthesizer message.
type FollowUp struct {
	asker       asker
	temperature float64
}

// Answer records the question and the synthesizer's reply.
func (f *FollowUp) Answer(ctx context.Context, s *Session, question string) {
	var verdict string
	if m, ok := s.transcript.LastByRole(RoleSynthesizer); ok {
		verdict = m.Content
	}
	s.append(RoleUser, question)
	r := f.asker.ask(ctx, followUpInstruction(verdict, question), nil, f.temperature)
	s.append(RoleSynthesizer, r.Text)
}
