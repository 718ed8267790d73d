package generate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Gemini calls Google's Gemini models through the genai SDK, either on the
// Gemini API (API key) or on Vertex AI (project and location).
type Gemini struct {
	models modelsClient
	model  string
	logger *zap.Logger
}

// modelsClient abstracts the genai Models service for test fakes.
type modelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOpts holds parameters for creating a Gemini backend.
type GeminiOpts struct {
	APIKey   string // Gemini API key; ignored when Project is set
	Project  string // Vertex AI project
	Location string // Vertex AI region
	Model    string
	Logger   *zap.Logger
	// For testing: inject a fake models client.
	Models modelsClient
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, opts GeminiOpts) (*Gemini, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("generate: gemini: model is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gemini{models: opts.Models, model: opts.Model, logger: logger}
	if g.models != nil {
		return g, nil
	}

	cc := &genai.ClientConfig{}
	switch {
	case opts.Project != "":
		if opts.Location == "" {
			return nil, fmt.Errorf("generate: gemini: location is required with project")
		}
		cc.Project = opts.Project
		cc.Location = opts.Location
		cc.Backend = genai.BackendVertexAI
	case opts.APIKey != "":
		cc.APIKey = opts.APIKey
		cc.Backend = genai.BackendGeminiAPI
	default:
		return nil, fmt.Errorf("generate: gemini: api key or project is required")
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("generate: gemini: create client: %w", err)
	}
	g.models = client.Models
	return g, nil
}

// Generate implements Generator. An empty history is sent as a single user
// turn carrying the instruction, since the API rejects empty contents.
func (g *Gemini) Generate(ctx context.Context, system string, history []Turn, temperature float64) (string, error) {
	var contents []*genai.Content
	for _, t := range history {
		role := genai.Role(genai.RoleUser)
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	temp := float32(temperature)
	cfg.Temperature = &temp
	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText(system, genai.RoleUser))
	} else if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	res, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate: gemini: generate content: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("generate: gemini: empty response")
	}
	g.logger.Debug("gemini completion", zap.String("model", g.model), zap.Int("history", len(history)))
	return text, nil
}
