package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
profile: ENTJ

generation:
  provider: openai
  base_url: https://llm.example.com/v1
  model: ep-2025-council
  api_key: sk-test
  timeout_sec: 30
  temperature: 0.5
  verdict_temperature: 1.1

investigation:
  min_rounds: 4
  max_rounds: 6
  completion_match: exact

archive:
  enabled: true
  driver: mysql
  mysql:
    host: 10.0.0.5
    port: 3307
    user: council
    password: hunter2
    database: council_prod

telegraph:
  platform: slack
  channel: C0123
  slack:
    app_token: xapp-1
    bot_token: xoxb-1
  idle_timeout_min: 30
  sweep_cron: "0 * * * *"

http:
  port: 9090
`

const minimalYAML = `
generation:
  provider: none
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Profile != "ENTJ" {
		t.Errorf("Profile = %q, want %q", cfg.Profile, "ENTJ")
	}
	g := cfg.Generation
	if g.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", g.Provider)
	}
	if g.BaseURL != "https://llm.example.com/v1" {
		t.Errorf("BaseURL = %q", g.BaseURL)
	}
	if g.Model != "ep-2025-council" {
		t.Errorf("Model = %q", g.Model)
	}
	if g.TimeoutSec != 30 {
		t.Errorf("TimeoutSec = %d, want 30", g.TimeoutSec)
	}
	if g.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", g.Temperature)
	}
	if g.VerdictTemperature != 1.1 {
		t.Errorf("VerdictTemperature = %v, want 1.1", g.VerdictTemperature)
	}
	if cfg.Investigation.MinRounds != 4 || cfg.Investigation.MaxRounds != 6 {
		t.Errorf("rounds = %d/%d, want 4/6", cfg.Investigation.MinRounds, cfg.Investigation.MaxRounds)
	}
	if cfg.Investigation.CompletionMatch != "exact" {
		t.Errorf("CompletionMatch = %q, want exact", cfg.Investigation.CompletionMatch)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Driver != "mysql" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.Archive.MySQL.Port != 3307 || cfg.Archive.MySQL.Database != "council_prod" {
		t.Errorf("Archive.MySQL = %+v", cfg.Archive.MySQL)
	}
	if cfg.Telegraph.Platform != "slack" || cfg.Telegraph.Channel != "C0123" {
		t.Errorf("Telegraph = %+v", cfg.Telegraph)
	}
	if cfg.Telegraph.IdleTimeoutMin != 30 {
		t.Errorf("IdleTimeoutMin = %d, want 30", cfg.Telegraph.IdleTimeoutMin)
	}
	if cfg.Telegraph.SweepCron != "0 * * * *" {
		t.Errorf("SweepCron = %q", cfg.Telegraph.SweepCron)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
}

func TestParse_MinimalDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Profile != "INFP" {
		t.Errorf("Profile = %q, want INFP", cfg.Profile)
	}
	if cfg.Generation.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", cfg.Generation.Temperature)
	}
	if cfg.Generation.VerdictTemperature != 0.9 {
		t.Errorf("VerdictTemperature = %v, want 0.9", cfg.Generation.VerdictTemperature)
	}
	if cfg.Generation.TimeoutSec != 120 {
		t.Errorf("TimeoutSec = %d, want 120", cfg.Generation.TimeoutSec)
	}
	if cfg.Generation.APIKeyEnv != "COUNCIL_API_KEY" {
		t.Errorf("APIKeyEnv = %q", cfg.Generation.APIKeyEnv)
	}
	if cfg.Investigation.MinRounds != 3 {
		t.Errorf("MinRounds = %d, want 3", cfg.Investigation.MinRounds)
	}
	if cfg.Investigation.MaxRounds != 8 {
		t.Errorf("MaxRounds = %d, want 8", cfg.Investigation.MaxRounds)
	}
	if cfg.Investigation.CompletionMatch != "contains" {
		t.Errorf("CompletionMatch = %q, want contains", cfg.Investigation.CompletionMatch)
	}
	if cfg.Archive.Enabled {
		t.Error("Archive.Enabled should default to false")
	}
	if cfg.Archive.Driver != "sqlite" || cfg.Archive.Path != "council.db" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.Telegraph.IdleTimeoutMin != 120 {
		t.Errorf("IdleTimeoutMin = %d, want 120", cfg.Telegraph.IdleTimeoutMin)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.HTTP.IdleTimeoutMin != 120 {
		t.Errorf("HTTP.IdleTimeoutMin = %d, want 120", cfg.HTTP.IdleTimeoutMin)
	}
}

func TestParse_GeminiDefaultModel(t *testing.T) {
	cfg, err := Parse([]byte("generation:\n  provider: gemini\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generation.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q, want gemini-2.5-flash", cfg.Generation.Model)
	}
	if cfg.Generation.BaseURL != "" {
		t.Errorf("BaseURL = %q, want empty for gemini", cfg.Generation.BaseURL)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("COUNCIL_TEST_BOT", "xoxb-from-env")
	yaml := `
generation:
  provider: none
telegraph:
  platform: slack
  slack:
    app_token: xapp-1
    bot_token: ${COUNCIL_TEST_BOT}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telegraph.Slack.BotToken != "xoxb-from-env" {
		t.Errorf("BotToken = %q, want xoxb-from-env", cfg.Telegraph.Slack.BotToken)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "openai without model",
			yaml: "generation:\n  provider: openai\n",
			want: "generation.model is required",
		},
		{
			name: "unknown provider",
			yaml: "generation:\n  provider: claude\n",
			want: `generation.provider "claude"`,
		},
		{
			name: "max below min",
			yaml: "generation:\n  provider: none\ninvestigation:\n  min_rounds: 5\n  max_rounds: 2\n",
			want: "max_rounds must not be below min_rounds",
		},
		{
			name: "bad completion match",
			yaml: "generation:\n  provider: none\ninvestigation:\n  completion_match: fuzzy\n",
			want: `completion_match "fuzzy"`,
		},
		{
			name: "slack missing tokens",
			yaml: "generation:\n  provider: none\ntelegraph:\n  platform: slack\n",
			want: "telegraph.slack.app_token is required; telegraph.slack.bot_token is required",
		},
		{
			name: "discord missing token",
			yaml: "generation:\n  provider: none\ntelegraph:\n  platform: discord\n",
			want: "telegraph.discord.bot_token is required",
		},
		{
			name: "unknown platform",
			yaml: "generation:\n  provider: none\ntelegraph:\n  platform: irc\n",
			want: `telegraph.platform "irc"`,
		},
		{
			name: "archive driver",
			yaml: "generation:\n  provider: none\narchive:\n  enabled: true\n  driver: postgres\n",
			want: `archive.driver "postgres"`,
		},
		{
			name: "temperature range",
			yaml: "generation:\n  provider: none\n  temperature: 3\n",
			want: "generation.temperature must be within",
		},
		{
			name: "gemini project without location",
			yaml: "generation:\n  provider: gemini\n  gemini:\n    project: p\n",
			want: "generation.gemini.location is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
			if !strings.HasPrefix(err.Error(), "config: validation failed: ") {
				t.Errorf("error = %q, want config prefix", err.Error())
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("profile: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse", err.Error())
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "council.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generation.Provider != "none" {
		t.Errorf("Provider = %q, want none", cfg.Generation.Provider)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "INFP" {
		t.Errorf("Profile = %q, want INFP", cfg.Profile)
	}
	if cfg.Investigation.MinRounds != 3 {
		t.Errorf("MinRounds = %d, want 3", cfg.Investigation.MinRounds)
	}
}

func TestLoad_Unreadable(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error reading a directory")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want config: read", err.Error())
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("COUNCIL_TEST_KEY", "from-env")

	g := GenerationConfig{APIKey: "inline", APIKeyEnv: "COUNCIL_TEST_KEY"}
	if got := g.ResolveAPIKey(); got != "inline" {
		t.Errorf("ResolveAPIKey() = %q, want inline", got)
	}

	g.APIKey = ""
	if got := g.ResolveAPIKey(); got != "from-env" {
		t.Errorf("ResolveAPIKey() = %q, want from-env", got)
	}

	g.APIKeyEnv = ""
	if got := g.ResolveAPIKey(); got != "" {
		t.Errorf("ResolveAPIKey() = %q, want empty", got)
	}
}
