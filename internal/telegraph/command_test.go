package telegraph

import (
	"context"
	"strings"
	"testing"
)

func setupCommands(t *testing.T) (*CommandHandler, *SessionManager) {
	t.Helper()
	sm, _ := setupSessions(t, quickGen())
	ch, err := NewCommandHandler(CommandHandlerOpts{Sessions: sm})
	if err != nil {
		t.Fatalf("NewCommandHandler: %v", err)
	}
	return ch, sm
}

func TestNewCommandHandler_NilSessions(t *testing.T) {
	_, err := NewCommandHandler(CommandHandlerOpts{})
	if err == nil {
		t.Fatal("expected error for nil session manager")
	}
	if !strings.Contains(err.Error(), "session manager is required") {
		t.Errorf("error = %q", err)
	}
}

// --- parseCommand tests ---

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"!council", nil},
		{"!council status", []string{"status"}},
		{"!council profile entj", []string{"profile", "entj"}},
		{"!council reset", []string{"reset"}},
		{"!council help", []string{"help"}},
		{"!council  status", []string{"status"}}, // extra space
		{"  !council  ", nil},
	}
	for _, tt := range tests {
		got := parseCommand(tt.input)
		if tt.want == nil && got != nil {
			t.Errorf("parseCommand(%q) = %v, want nil", tt.input, got)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseCommand(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseCommand(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

// --- Execute tests ---

func TestExecute_Help(t *testing.T) {
	ch, _ := setupCommands(t)
	got := ch.Execute("C1", "T1", "!council help")
	if !strings.Contains(got, "Inner Council Commands") {
		t.Errorf("help = %q", got)
	}
}

func TestExecute_BareCommand(t *testing.T) {
	ch, _ := setupCommands(t)
	got := ch.Execute("C1", "T1", "!council")
	if !strings.Contains(got, "Inner Council Commands") {
		t.Errorf("bare command should show help, got %q", got)
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	ch, _ := setupCommands(t)
	got := ch.Execute("C1", "T1", "!council tarot")
	if !strings.Contains(got, "Unknown command: `tarot`") {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(got, "Inner Council Commands") {
		t.Error("unknown command should include help")
	}
}

func TestExecute_StatusNoSession(t *testing.T) {
	ch, _ := setupCommands(t)
	got := ch.Execute("C1", "T1", "!council status")
	if !strings.Contains(got, "No session in this thread") || !strings.Contains(got, "Live sessions: 0") {
		t.Errorf("got %q", got)
	}
}

func TestExecute_StatusWithSession(t *testing.T) {
	ch, sm := setupCommands(t)
	sm.Route(context.Background(), "C1", "T1", "trouble")

	got := ch.Execute("C1", "T1", "!council status")
	if !strings.Contains(got, "Stage: INVESTIGATE | Round: 1 | Profile: INFP") {
		t.Errorf("got %q", got)
	}
}

func TestExecute_ResetNoSession(t *testing.T) {
	ch, _ := setupCommands(t)
	got := ch.Execute("C1", "T1", "!council reset")
	if !strings.HasPrefix(got, "No session in this thread.") {
		t.Errorf("got %q", got)
	}
}

func TestExecute_Reset(t *testing.T) {
	ch, sm := setupCommands(t)
	sm.Route(context.Background(), "C1", "T1", "trouble")

	got := ch.Execute("C1", "T1", "!council reset")
	if got != "Session reset. Tell me what is troubling you." {
		t.Errorf("got %q", got)
	}
	snap, _ := sm.Snapshot("C1", "T1")
	if len(snap.Transcript) != 0 {
		t.Errorf("transcript len = %d, want 0", len(snap.Transcript))
	}
}

func TestExecute_ProfileSet(t *testing.T) {
	ch, sm := setupCommands(t)
	got := ch.Execute("C1", "T1", "!council profile ESTJ")
	if got != "Profile set to ESTJ." {
		t.Errorf("got %q", got)
	}
	snap, ok := sm.Snapshot("C1", "T1")
	if !ok || snap.Profile != "ESTJ" {
		t.Errorf("profile = %q, want ESTJ", snap.Profile)
	}
}

func TestExecute_ProfileKeepsFreeText(t *testing.T) {
	ch, sm := setupCommands(t)
	got := ch.Execute("C1", "T1", "!council profile anxious introvert, 34")
	if got != "Profile set to anxious introvert, 34." {
		t.Errorf("got %q", got)
	}
	snap, ok := sm.Snapshot("C1", "T1")
	if !ok || snap.Profile != "anxious introvert, 34" {
		t.Errorf("profile = %q, want the whole descriptor", snap.Profile)
	}
}

func TestExecute_ProfileShow(t *testing.T) {
	ch, _ := setupCommands(t)
	got := ch.Execute("C1", "T1", "!council profile")
	if !strings.HasPrefix(got, "Usage:") {
		t.Errorf("without session: %q", got)
	}

	ch.Execute("C1", "T1", "!council profile INTP")
	got = ch.Execute("C1", "T1", "!council profile")
	if !strings.HasPrefix(got, "Profile: INTP") {
		t.Errorf("with session: %q", got)
	}
}
