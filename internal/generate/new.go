package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/council/internal/config"
	"go.uber.org/zap"
)

// New builds the backend selected by cfg.Provider. A provider without
// credentials yields Unavailable so sessions still run on placeholder text.
func New(ctx context.Context, cfg config.GenerationConfig, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := cfg.ResolveAPIKey()

	switch cfg.Provider {
	case "none":
		return Unavailable{}, nil
	case "openai":
		if key == "" {
			logger.Warn("no api key configured; generation disabled",
				zap.String("provider", cfg.Provider),
				zap.String("env", cfg.APIKeyEnv))
			return Unavailable{}, nil
		}
		return NewOpenAI(OpenAIOpts{
			BaseURL: cfg.BaseURL,
			APIKey:  key,
			Model:   cfg.Model,
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Logger:  logger,
		})
	case "gemini":
		if key == "" && cfg.Gemini.Project == "" {
			logger.Warn("no api key or project configured; generation disabled",
				zap.String("provider", cfg.Provider))
			return Unavailable{}, nil
		}
		return NewGemini(ctx, GeminiOpts{
			APIKey:   key,
			Project:  cfg.Gemini.Project,
			Location: cfg.Gemini.Location,
			Model:    cfg.Model,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("generate: unknown provider %q", cfg.Provider)
	}
}
