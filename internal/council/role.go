// Package council drives a multi-persona advice session: an interrogator
// investigates the user's situation over bounded rounds, four fixed personas
// each give one opinion, a synthesizer delivers a verdict, and the session
// then answers follow-up questions indefinitely.
package council

// Role identifies who authored a transcript message.
type Role string

const (
	RoleUser         Role = "user"
	RoleInterrogator Role = "interrogator"
	RoleRational     Role = "persona_rational"
	RoleEmotional    Role = "persona_emotional"
	RoleConservative Role = "persona_conservative"
	RoleAdventure    Role = "persona_adventure"
	RoleSynthesizer  Role = "synthesizer"
)

// Message is one immutable transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Display holds presentation metadata for a role.
type Display struct {
	Title string // tarot card title
	Icon  string
	Color string // hex, e.g. "#87CEEB"
}

// VerdictColor is the accent used for the verdict card.
const VerdictColor = "#FFD700"

var displays = map[Role]Display{
	RoleUser:         {Title: "THE FOOL", Icon: "🃏", Color: "#E0E0E0"},
	RoleInterrogator: {Title: "THE HERMIT", Icon: "🏮", Color: "#9E9E9E"},
	RoleRational:     {Title: "KING of SWORDS", Icon: "⚔️", Color: "#87CEEB"},
	RoleEmotional:    {Title: "QUEEN of CUPS", Icon: "🍷", Color: "#FF6B6B"},
	RoleConservative: {Title: "KNIGHT of PENTACLES", Icon: "🪙", Color: "#DAA520"},
	RoleAdventure:    {Title: "KNIGHT of WANDS", Icon: "🔥", Color: "#00FA9A"},
	RoleSynthesizer:  {Title: "WHEEL OF FORTUNE", Icon: "☸️", Color: VerdictColor},
}

// DisplayFor returns the presentation metadata for role. Unknown roles get
// a neutral grey entry titled with the raw role name.
func DisplayFor(role Role) Display {
	if d, ok := displays[role]; ok {
		return d
	}
	return Display{Title: string(role), Color: "#9E9E9E"}
}
