package council

import (
	"fmt"
	"strings"
)

const interrogatorVoice = "You are the Hermit, a patient detective who questions a person about the trouble they bring. " +
	"Ask exactly one short question per turn and never give advice."

// handoffNotice is shown when the interrogator hands the case to the council.
const handoffNotice = "(Investigation complete, handing the case to the council...)"

// fallbackQuestion replaces a question that came back empty.
const fallbackQuestion = "Tell me more: what matters most to you in all of this?"

// fallbackSummary replaces a case summary that came back empty.
const fallbackSummary = "The case could not be summarized. Judge it from the subject's own words and profile."

// Placeholder is the reply shown for every call while no generation service
// is configured.
const Placeholder = "⚠️ (simulated reply) check the generation service connection."

// warmthNote is appended to instructions sent at elevated temperature.
const warmthNote = "Use a warm, human tone."

func seedTurn(complaint, profile string) string {
	return fmt.Sprintf("User's concern: %s. Profile: %s.", complaint, profile)
}

func openingInstruction() string {
	return interrogatorVoice + "\nThis is round one. Ask the single most important follow-up question."
}

func forcedInstruction(round, minRounds int) string {
	return interrogatorVoice + fmt.Sprintf(
		"\nRound %d/%d. Ending is not allowed yet. Find a dimension of the story that is still missing "+
			"(people involved, history, stakes, feelings, constraints) and ask about it.", round, minRounds)
}

func decisionInstruction() string {
	return interrogatorVoice + "\nIs the information sufficient? If it is, reply with " + CompletionToken +
		" and nothing else. If it is not, ask one more follow-up question."
}

func summaryInstruction() string {
	return "Summarize the complete case in the third person, in one paragraph."
}

func personaPrompt(summary, profile string) string {
	return fmt.Sprintf("Case: %s. Profile: %s. State your core position.", summary, profile)
}

func verdictInstruction(summary, profile string, opinions []Opinion, warm bool) string {
	var b strings.Builder
	b.WriteString("You are the Ferryman at the Wheel of Fortune. Four inner voices have argued over this person's case; ")
	b.WriteString("deliver the final verdict.\n\n")
	fmt.Fprintf(&b, "Case: %s\n", summary)
	fmt.Fprintf(&b, "Profile: %s\n\n", profile)
	b.WriteString("The council said:\n")
	for _, op := range opinions {
		label := string(op.Persona)
		if p, ok := PersonaByID(op.Persona); ok {
			label = p.Label
		}
		fmt.Fprintf(&b, "%s: %s\n", label, op.Text)
	}
	b.WriteString("\nArbitrate dialectically: name what each voice gets right, where they collide, and what choice survives the collision.\n")
	b.WriteString("Shape rules:\n")
	b.WriteString("- Write flowing narrative prose. No numbered or bulleted lists.\n")
	b.WriteString("- No bracketed or bold section headings.\n")
	fmt.Fprintf(&b, "- Speak to how a %s person actually thinks and feels.\n", profile)
	b.WriteString("- End with exactly this shape: Tonight, you could try sending them this message: '...'\n")
	if warm {
		b.WriteString(warmthNote)
	}
	return b.String()
}

func followUpInstruction(verdict, question string) string {
	return fmt.Sprintf("As the Ferryman, answer the user's follow-up briefly.\nEarlier verdict: %s\nNew question: %s", verdict, question)
}
