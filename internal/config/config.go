// Package config provides YAML-based configuration loading for the council.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level council configuration, loaded from council.yaml.
type Config struct {
	Profile       string              `yaml:"profile"`
	Generation    GenerationConfig    `yaml:"generation"`
	Investigation InvestigationConfig `yaml:"investigation"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Telegraph     TelegraphConfig     `yaml:"telegraph"`
	HTTP          HTTPConfig          `yaml:"http"`
}

// GenerationConfig selects and tunes the text-generation backend.
type GenerationConfig struct {
	Provider           string       `yaml:"provider"` // openai, gemini, none
	BaseURL            string       `yaml:"base_url"`
	Model              string       `yaml:"model"`
	APIKey             string       `yaml:"api_key"`
	APIKeyEnv          string       `yaml:"api_key_env"`
	TimeoutSec         int          `yaml:"timeout_sec"`
	Temperature        float64      `yaml:"temperature"`
	VerdictTemperature float64      `yaml:"verdict_temperature"`
	Gemini             GeminiConfig `yaml:"gemini"`
}

// GeminiConfig holds Vertex AI settings. When Project is empty the Gemini
// API is used with the generation API key instead.
type GeminiConfig struct {
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
}

// InvestigationConfig bounds the interrogation loop.
type InvestigationConfig struct {
	MinRounds       int    `yaml:"min_rounds"`
	MaxRounds       int    `yaml:"max_rounds"`
	CompletionMatch string `yaml:"completion_match"` // contains, exact
}

// ArchiveConfig controls the optional transcript archive.
type ArchiveConfig struct {
	Enabled bool        `yaml:"enabled"`
	Driver  string      `yaml:"driver"` // sqlite, mysql
	Path    string      `yaml:"path"`
	MySQL   MySQLConfig `yaml:"mysql"`
}

// MySQLConfig holds connection settings for a MySQL archive.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// TelegraphConfig configures the chat-platform bridge.
type TelegraphConfig struct {
	Platform       string        `yaml:"platform"` // slack, discord
	Channel        string        `yaml:"channel"`
	Slack          SlackConfig   `yaml:"slack"`
	Discord        DiscordConfig `yaml:"discord"`
	IdleTimeoutMin int           `yaml:"idle_timeout_min"`
	SweepCron      string        `yaml:"sweep_cron"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// HTTPConfig configures the HTTP API server.
type HTTPConfig struct {
	Port           int `yaml:"port"`
	IdleTimeoutMin int `yaml:"idle_timeout_min"`
}

// Default returns a Config with every default applied, used when no config
// file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path and returns a validated Config.
// A missing file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Environment
// references of the form ${VAR} are expanded before parsing.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveAPIKey returns the configured API key, falling back to the
// environment variable named by APIKeyEnv.
func (g GenerationConfig) ResolveAPIKey() string {
	if g.APIKey != "" {
		return g.APIKey
	}
	if g.APIKeyEnv != "" {
		return os.Getenv(g.APIKeyEnv)
	}
	return ""
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Profile == "" {
		c.Profile = "INFP"
	}

	g := &c.Generation
	if g.Provider == "" {
		g.Provider = "openai"
	}
	if g.BaseURL == "" && g.Provider == "openai" {
		g.BaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}
	if g.Model == "" && g.Provider == "gemini" {
		g.Model = "gemini-2.5-flash"
	}
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = "COUNCIL_API_KEY"
	}
	if g.TimeoutSec == 0 {
		g.TimeoutSec = 120
	}
	if g.Temperature == 0 {
		g.Temperature = 0.7
	}
	if g.VerdictTemperature == 0 {
		g.VerdictTemperature = 0.9
	}

	inv := &c.Investigation
	if inv.MinRounds == 0 {
		inv.MinRounds = 3
	}
	if inv.MaxRounds == 0 {
		inv.MaxRounds = 8
	}
	if inv.CompletionMatch == "" {
		inv.CompletionMatch = "contains"
	}

	a := &c.Archive
	if a.Driver == "" {
		a.Driver = "sqlite"
	}
	if a.Path == "" {
		a.Path = "council.db"
	}
	if a.MySQL.Host == "" {
		a.MySQL.Host = "127.0.0.1"
	}
	if a.MySQL.Port == 0 {
		a.MySQL.Port = 3306
	}
	if a.MySQL.User == "" {
		a.MySQL.User = "root"
	}
	if a.MySQL.Database == "" {
		a.MySQL.Database = "council"
	}

	if c.Telegraph.IdleTimeoutMin == 0 {
		c.Telegraph.IdleTimeoutMin = 120
	}
	if c.Telegraph.SweepCron == "" {
		c.Telegraph.SweepCron = "*/15 * * * *"
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.IdleTimeoutMin == 0 {
		c.HTTP.IdleTimeoutMin = 120
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Generation.Provider {
	case "openai":
		if c.Generation.Model == "" {
			errs = append(errs, "generation.model is required for provider openai")
		}
	case "gemini", "none":
	default:
		errs = append(errs, fmt.Sprintf("generation.provider %q is not one of openai, gemini, none", c.Generation.Provider))
	}
	if c.Generation.Gemini.Project != "" && c.Generation.Gemini.Location == "" {
		errs = append(errs, "generation.gemini.location is required when project is set")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, "generation.temperature must be within [0, 2]")
	}
	if c.Generation.VerdictTemperature < 0 || c.Generation.VerdictTemperature > 2 {
		errs = append(errs, "generation.verdict_temperature must be within [0, 2]")
	}

	if c.Investigation.MinRounds < 1 {
		errs = append(errs, "investigation.min_rounds must be at least 1")
	}
	if c.Investigation.MaxRounds < c.Investigation.MinRounds {
		errs = append(errs, "investigation.max_rounds must not be below min_rounds")
	}
	switch c.Investigation.CompletionMatch {
	case "contains", "exact":
	default:
		errs = append(errs, fmt.Sprintf("investigation.completion_match %q is not one of contains, exact", c.Investigation.CompletionMatch))
	}

	if c.Archive.Enabled {
		switch c.Archive.Driver {
		case "sqlite", "mysql":
		default:
			errs = append(errs, fmt.Sprintf("archive.driver %q is not one of sqlite, mysql", c.Archive.Driver))
		}
	}

	switch c.Telegraph.Platform {
	case "":
	case "slack":
		if c.Telegraph.Slack.AppToken == "" {
			errs = append(errs, "telegraph.slack.app_token is required")
		}
		if c.Telegraph.Slack.BotToken == "" {
			errs = append(errs, "telegraph.slack.bot_token is required")
		}
	case "discord":
		if c.Telegraph.Discord.BotToken == "" {
			errs = append(errs, "telegraph.discord.bot_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("telegraph.platform %q is not one of slack, discord", c.Telegraph.Platform))
	}
	if c.Telegraph.IdleTimeoutMin < 0 {
		errs = append(errs, "telegraph.idle_timeout_min must not be negative")
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, "http.port must be within [0, 65535]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
