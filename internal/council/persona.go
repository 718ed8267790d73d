package council

// PersonaID names one of the four council members.
type PersonaID string

const (
	PersonaRational     PersonaID = "rational"
	PersonaEmotional    PersonaID = "emotional"
	PersonaConservative PersonaID = "conservative"
	PersonaAdventure    PersonaID = "adventure"
)

// Persona is a fixed council member with its own voice.
type Persona struct {
	ID          PersonaID
	Role        Role
	Label       string // short human name, e.g. "Rational"
	Instruction string // system instruction sent with every call
}

// personas is the canonical speaking order.
var personas = []Persona{
	{
		ID:          PersonaRational,
		Role:        RoleRational,
		Label:       "Rational",
		Instruction: "You are a game theorist. Look only at the calculation of interests and at sunk costs. Answer in no more than 60 characters.",
	},
	{
		ID:          PersonaEmotional,
		Role:        RoleEmotional,
		Label:       "Emotional",
		Instruction: "You are a counsellor. Attend to feelings and to what the person resents having swallowed. Answer in no more than 60 characters.",
	},
	{
		ID:          PersonaConservative,
		Role:        RoleConservative,
		Label:       "Conservative",
		Instruction: "You are a risk officer. Attend to safety, cutting losses and keeping the status quo. Answer in no more than 60 characters.",
	},
	{
		ID:          PersonaAdventure,
		Role:        RoleAdventure,
		Label:       "Adventure",
		Instruction: "You are a Nietzschean philosopher. Argue for breaking things, rebuilding and embracing conflict. Answer in no more than 60 characters.",
	},
}

// Personas returns the council members in canonical order.
func Personas() []Persona {
	out := make([]Persona, len(personas))
	copy(out, personas)
	return out
}

// PersonaByID looks up a council member.
func PersonaByID(id PersonaID) (Persona, bool) {
	for _, p := range personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// Opinion is one persona's recorded position.
type Opinion struct {
	Persona PersonaID `json:"persona"`
	Text    string    `json:"text"`
}
