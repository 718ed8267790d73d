package council

// Transcript is the append-only, ordered display log of a session. It is not
// safe for concurrent use; the owning Controller serializes access.
type Transcript struct {
	msgs []Message
}

// Append adds one message at the end and returns it.
func (t *Transcript) Append(role Role, content string) Message {
	m := Message{Role: role, Content: content}
	t.msgs = append(t.msgs, m)
	return m
}

// All returns a copy of every message in order.
func (t *Transcript) All() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.msgs)
}

// Last returns the most recent message.
func (t *Transcript) Last() (Message, bool) {
	if len(t.msgs) == 0 {
		return Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

// LastByRole returns the most recent message authored by role.
func (t *Transcript) LastByRole(role Role) (Message, bool) {
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if t.msgs[i].Role == role {
			return t.msgs[i], true
		}
	}
	return Message{}, false
}

func (t *Transcript) clear() {
	t.msgs = nil
}
