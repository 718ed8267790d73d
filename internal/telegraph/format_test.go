package telegraph

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/zulandar/council/internal/council"
)

// --- FormatMessage tests ---

func TestFormatMessage_VerdictIsCard(t *testing.T) {
	out := FormatMessage(council.Message{Role: council.RoleSynthesizer, Content: "Let go gently."})
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if out[0].Text != "" {
		t.Errorf("Text = %q, want empty", out[0].Text)
	}
	if len(out[0].Cards) != 1 {
		t.Fatalf("Cards len = %d, want 1", len(out[0].Cards))
	}
	card := out[0].Cards[0]
	if card.Title != "☸️ WHEEL OF FORTUNE" {
		t.Errorf("Title = %q", card.Title)
	}
	if card.Body != "Let go gently." {
		t.Errorf("Body = %q", card.Body)
	}
	if card.Color != council.VerdictColor {
		t.Errorf("Color = %q, want %q", card.Color, council.VerdictColor)
	}
}

func TestFormatMessage_PersonaHeader(t *testing.T) {
	out := FormatMessage(council.Message{Role: council.RoleEmotional, Content: "You are hurting."})
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	want := "🍷 **QUEEN of CUPS**\nYou are hurting."
	if out[0].Text != want {
		t.Errorf("Text = %q, want %q", out[0].Text, want)
	}
	if len(out[0].Cards) != 0 {
		t.Error("persona messages should not carry cards")
	}
}

func TestFormatMessage_UnknownRoleUsesRawName(t *testing.T) {
	out := FormatMessage(council.Message{Role: "narrator", Content: "..."})
	if !strings.HasPrefix(out[0].Text, "**narrator**\n") {
		t.Errorf("Text = %q", out[0].Text)
	}
}

func TestFormatMessage_LongTextChunked(t *testing.T) {
	content := strings.Repeat("word ", 1000)
	out := FormatMessage(council.Message{Role: council.RoleInterrogator, Content: content})
	if len(out) < 3 {
		t.Fatalf("len = %d, want at least 3 chunks", len(out))
	}
	for i, m := range out {
		if len(m.Text) > maxMessageLen {
			t.Errorf("chunk %d is %d bytes", i, len(m.Text))
		}
	}
	if !strings.Contains(out[0].Text, "THE HERMIT") {
		t.Error("header should lead the first chunk")
	}
}

// --- FormatStatus tests ---

func TestFormatStatus_Investigating(t *testing.T) {
	snap := council.Snapshot{
		Stage:   council.StageInvestigate,
		Round:   2,
		Profile: "INFP",
		Transcript: []council.Message{
			{Role: council.RoleUser, Content: "a"},
			{Role: council.RoleInterrogator, Content: "b"},
			{Role: council.RoleUser, Content: "c"},
			{Role: council.RoleInterrogator, Content: "d"},
		},
	}
	got := FormatStatus(snap, 3)
	for _, want := range []string{
		"**Council Status**",
		"Stage: INVESTIGATE | Round: 2 | Profile: INFP",
		"Messages: 4 | Live sessions: 3",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Voices heard") {
		t.Error("no voices should be reported before the council")
	}
}

func TestFormatStatus_VoicesHeard(t *testing.T) {
	snap := council.Snapshot{
		Stage:    council.StageCouncil,
		Profile:  "ENTJ",
		Opinions: []council.Opinion{{Persona: council.PersonaRational, Text: "x"}},
	}
	got := FormatStatus(snap, 1)
	if !strings.Contains(got, "Voices heard: 1/4") {
		t.Errorf("status = %s", got)
	}
}

// --- chunkMessage tests ---

func TestChunkMessage_Short(t *testing.T) {
	chunks := chunkMessage("hello", 10)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestChunkMessage_PrefersNewline(t *testing.T) {
	text := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	chunks := chunkMessage(text, 12)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %q", chunks)
	}
	if chunks[0] != strings.Repeat("a", 8) || chunks[1] != strings.Repeat("b", 8) {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestChunkMessage_HardCut(t *testing.T) {
	chunks := chunkMessage(strings.Repeat("x", 25), 10)
	if len(chunks) != 3 {
		t.Fatalf("len = %d, want 3", len(chunks))
	}
	if strings.Join(chunks, "") != strings.Repeat("x", 25) {
		t.Error("chunks should reassemble to the input")
	}
}

func TestChunkMessage_KeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("心", 10) // 3 bytes each
	chunks := chunkMessage(text, 10)
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c)
		}
		if len(c) > 10 {
			t.Errorf("chunk %d is %d bytes", i, len(c))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks should reassemble to the input")
	}
}

func TestChunkMessage_DefaultLimit(t *testing.T) {
	chunks := chunkMessage(strings.Repeat("y", maxMessageLen+1), 0)
	if len(chunks) != 2 {
		t.Errorf("len = %d, want 2", len(chunks))
	}
}
